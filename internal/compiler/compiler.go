package compiler

import (
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
	"github.com/Norgate-AV/cpplab/internal/utils"
)

// GraphicsLibs are linked, in this order, into graphics projects
var GraphicsLibs = []string{"-lbgi", "-lgdi32", "-lcomdlg32", "-luuid", "-lole32", "-loleaut32"}

// ShellCommand is one compiler invocation
type ShellCommand struct {
	Path string
	Args []string

	// Dir is the working directory, the project root
	Dir string

	// BinDir is prepended to PATH so the compiler finds its own tools and DLLs
	BinDir string
}

// Argv returns the full command line
func (c *ShellCommand) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// String renders the command line for logs, quoting arguments that contain spaces
func (c *ShellCommand) String() string {
	parts := c.Argv()
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = `"` + p + `"`
		}
	}

	return strings.Join(parts, " ")
}

func newCommand(spec *project.BuildSpec, tc toolchain.Descriptor, args []string) *ShellCommand {
	return &ShellCommand{
		Path:   tc.Compiler(spec.Language),
		Args:   args,
		Dir:    spec.Root,
		BinDir: tc.BinDir(),
	}
}

// languageFlags are the flags shared by every compile of the project
func languageFlags(spec *project.BuildSpec, tc toolchain.Descriptor) []string {
	flags := []string{"-std=" + spec.Standard}
	if spec.Features.OpenMP && tc.SupportsOpenMP {
		flags = append(flags, "-fopenmp")
	}

	return flags
}

func linkFlags(spec *project.BuildSpec) []string {
	if spec.Features.Graphics {
		return GraphicsLibs
	}

	return nil
}

// BuildCommand compiles and links every source in one invocation
func BuildCommand(spec *project.BuildSpec, tc toolchain.Descriptor, artifact string) *ShellCommand {
	var args []string
	args = append(args, spec.SourcePaths()...)
	args = append(args, languageFlags(spec, tc)...)
	args = append(args, "-o", artifact)
	args = append(args, linkFlags(spec)...)

	return newCommand(spec, tc, args)
}

// CompileCommand compiles a single translation unit to an object file
func CompileCommand(spec *project.BuildSpec, tc toolchain.Descriptor, source, object string) *ShellCommand {
	var args []string
	args = append(args, source)
	args = append(args, languageFlags(spec, tc)...)
	args = append(args, "-c", "-o", object)

	return newCommand(spec, tc, args)
}

// LinkCommand links object files, in the order given, into the artifact
func LinkCommand(spec *project.BuildSpec, tc toolchain.Descriptor, objects []string, artifact string) *ShellCommand {
	var args []string
	args = append(args, objects...)
	args = append(args, "-o", artifact)
	if spec.Features.OpenMP && tc.SupportsOpenMP {
		args = append(args, "-fopenmp")
	}
	args = append(args, linkFlags(spec)...)

	return newCommand(spec, tc, args)
}

// SyntaxCheckCommand checks every source without producing output
func SyntaxCheckCommand(spec *project.BuildSpec, tc toolchain.Descriptor) *ShellCommand {
	var args []string
	args = append(args, spec.SourcePaths()...)
	args = append(args, languageFlags(spec, tc)...)
	args = append(args, "-fsyntax-only")

	return newCommand(spec, tc, args)
}

// ObjectPath is where the object file for source is written
func ObjectPath(spec *project.BuildSpec, source string) string {
	rel, err := filepath.Rel(spec.Root, source)
	if err != nil {
		rel = source
	}

	return filepath.Join(spec.ObjectDir(), utils.ObjectName(rel))
}
