// Package source owns the reader stage of a dataset's raw point data.
//
// A Manager is built once per Session, the first time an unindexed read or a
// source-backed metadata call needs it. Building the stage goes through the
// shared pipeline.Factory under the caller's factory lock; previewing and
// reading happen outside that lock.
package source
