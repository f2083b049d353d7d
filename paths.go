package greyhound

import (
	"fmt"
	"strings"

	"github.com/hupe1980/greyhound/arbiter"
)

// Paths names where a dataset may live.
//
// Inputs are searched for a raw source file named after the dataset
// (e.g. "autzen.grp" or "autzen.txt") and for an index directory
// "<input>/<name>". Output, when set, is searched for an index first.
type Paths struct {
	Inputs []string
	Output string
}

// Validate reports whether every path is parsable.
func (p Paths) Validate() error {
	if len(p.Inputs) == 0 {
		return fmt.Errorf("%w: no input paths", ErrInvalidArgument)
	}
	for _, in := range p.Inputs {
		if _, err := arbiter.Parse(in); err != nil {
			return fmt.Errorf("%w: input %q: %w", ErrInvalidArgument, in, err)
		}
	}
	if p.Output != "" {
		if _, err := arbiter.Parse(p.Output); err != nil {
			return fmt.Errorf("%w: output %q: %w", ErrInvalidArgument, p.Output, err)
		}
	}
	return nil
}

// indexDirs returns the directories probed for an index, output first.
func (p Paths) indexDirs() []string {
	dirs := make([]string, 0, len(p.Inputs)+1)
	if p.Output != "" {
		dirs = append(dirs, p.Output)
	}
	return append(dirs, p.Inputs...)
}

func (p Paths) clone() Paths {
	return Paths{
		Inputs: append([]string(nil), p.Inputs...),
		Output: p.Output,
	}
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty dataset name", ErrInvalidArgument)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: dataset name %q", ErrInvalidArgument, name)
	}
	return nil
}

// dirPrefix turns a directory into a List prefix.
func dirPrefix(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}
