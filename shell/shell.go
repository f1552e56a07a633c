// Package shell implements the line-oriented command loop that drives an
// engine.Engine, grounded on original_source/CommandProcessor.cpp's
// string-to-closure commandMap and its formatted/limited-mode command
// gating, translated from a C++ std::map<string, std::function<...>> to a
// Go map of string to method value. Per spec.md §1 this driver layer is
// explicitly out of the core's scope; it exists only to expose the core
// through the command surface spec.md §6 names.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/engine"
	"github.com/ButterDevelop/c-virtual-file-system/presets"
)

// Shell reads commands one line at a time and writes one result line per
// command to out.
type Shell struct {
	eng       *engine.Engine
	out       io.Writer
	boundPath string
	commands  map[string]func(args []string) string
	limitedOK map[string]bool
}

// New creates a Shell driving eng against the single backing-file path the
// process was started with (spec.md §6: "CLI: a single positional
// argument, the path to the backing file"), writing results to out.
func New(eng *engine.Engine, boundPath string, out io.Writer) *Shell {
	s := &Shell{eng: eng, boundPath: boundPath, out: out}
	s.commands = map[string]func(args []string) string{
		"help":  s.cmdHelp,
		"format": s.cmdFormat,
		"load":  s.cmdLoad,
		"pwd":   s.cmdPwd,
		"cd":    s.cmdCd,
		"ls":    s.cmdLs,
		"mkdir": s.cmdMkdir,
		"rmdir": s.cmdRmdir,
		"cp":    s.cmdCp,
		"mv":    s.cmdMv,
		"rm":    s.cmdRm,
		"ln":    s.cmdLn,
		"cat":   s.cmdCat,
		"incp":  s.cmdIncp,
		"outcp": s.cmdOutcp,
		"info":  s.cmdInfo,
	}
	s.limitedOK = map[string]bool{"help": true, "pwd": true, "load": true, "format": true}
	return s
}

// Run reads one command per input line until EOF, `exit`, or `quit`.
func (s *Shell) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		s.Dispatch(line)
	}
}

// Dispatch parses and executes a single command line, writing its result.
func (s *Shell) Dispatch(line string) {
	fields := strings.Fields(line)
	name := fields[0]
	args := fields[1:]

	handler, ok := s.commands[name]
	if !ok {
		fmt.Fprintln(s.out, "UNKNOWN COMMAND")
		return
	}
	if !s.eng.IsFormatted() && !s.limitedOK[name] {
		fmt.Fprintln(s.out, "NOT AVAILABLE")
		return
	}
	fmt.Fprintln(s.out, handler(args))
}

func (s *Shell) cmdHelp(args []string) string {
	var b strings.Builder
	b.WriteString("help            -- display this text\n")
	b.WriteString("exit/quit       -- leave the shell\n")
	b.WriteString("format SIZE     -- format the backing file to SIZE (1K/1M/1G, or a preset slug)\n")
	b.WriteString("load PATH       -- run commands from a host script file, one per line\n")
	b.WriteString("pwd             -- print current directory")
	if s.eng.IsFormatted() {
		b.WriteString("\n")
		b.WriteString("ls [PATH]       -- list directory contents\n")
		b.WriteString("cd PATH         -- change current directory\n")
		b.WriteString("mkdir PATH      -- create a directory\n")
		b.WriteString("rmdir PATH      -- remove an empty directory\n")
		b.WriteString("cp SRC DST      -- copy a file\n")
		b.WriteString("mv SRC DST      -- move or rename a file or directory\n")
		b.WriteString("rm PATH         -- remove a file\n")
		b.WriteString("ln SRC DST      -- create a hard link\n")
		b.WriteString("cat PATH        -- print a file's contents\n")
		b.WriteString("incp HOST VFS   -- import a host file\n")
		b.WriteString("outcp VFS HOST  -- export to a host file\n")
		b.WriteString("info PATH       -- show inode details")
	}
	return b.String()
}

// cmdFormat accepts either a raw "<N><K|M|G>" size string or the slug of a
// named preset from the presets package (SPEC_FULL.md §11), trying the
// preset table first since preset slugs and bare numbers never collide.
func (s *Shell) cmdFormat(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	if p, perr := presets.Lookup(args[0]); perr == nil {
		return resultOf(s.eng.Format(s.boundPath, p.SizeBytes))
	}
	size, serr := ParseSize(args[0])
	if serr != nil {
		return "ERROR PARSING SIZE STRING"
	}
	return resultOf(s.eng.Format(s.boundPath, size))
}

// cmdLoad replays a host script file one command per line, grounded on
// original_source/CommandProcessor.cpp's processLoad: it is a batch runner
// for this same command surface, not a mount alias, which is why it stays
// in limitedOK alongside format — a fresh session bootstraps via
// `load setup.txt` whose first line is a `format` command.
func (s *Shell) cmdLoad(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	f, err := os.Open(args[0])
	if err != nil {
		return "FILE NOT FOUND"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprintln(s.out, "> "+line)
		s.Dispatch(line)
	}
	return "FILE COMPLETE"
}

func (s *Shell) cmdPwd(args []string) string {
	path, err := s.eng.Pwd()
	if err != nil {
		return resultOf(err)
	}
	return path
}

func (s *Shell) cmdCd(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Cd(args[0]))
}

func (s *Shell) cmdLs(args []string) string {
	path := "."
	if len(args) == 1 {
		path = args[0]
	} else if len(args) > 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}

	entries, err := s.eng.List(path)
	if err != nil {
		return resultOf(err)
	}
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		prefix := "-"
		if e.Kind == vfs.KindDirectory {
			prefix = "+"
		}
		lines = append(lines, prefix+e.Name)
	}
	return strings.Join(lines, "\n")
}

func (s *Shell) cmdMkdir(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Mkdir(args[0]))
}

func (s *Shell) cmdRmdir(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Rmdir(args[0]))
}

func (s *Shell) cmdCp(args []string) string {
	if len(args) != 2 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Cp(args[0], args[1]))
}

func (s *Shell) cmdMv(args []string) string {
	if len(args) != 2 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Mv(args[0], args[1]))
}

func (s *Shell) cmdRm(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Rm(args[0]))
}

func (s *Shell) cmdLn(args []string) string {
	if len(args) != 2 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Ln(args[0], args[1]))
}

func (s *Shell) cmdCat(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	data, err := s.eng.Cat(args[0])
	if err != nil {
		return resultOf(err)
	}
	return string(data)
}

func (s *Shell) cmdIncp(args []string) string {
	if len(args) != 2 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Incp(args[0], args[1]))
}

func (s *Shell) cmdOutcp(args []string) string {
	if len(args) != 2 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	return resultOf(s.eng.Outcp(args[0], args[1]))
}

func (s *Shell) cmdInfo(args []string) string {
	if len(args) != 1 {
		return "WRONG NUMBER OF ARGUMENTS"
	}
	info, err := s.eng.Info(args[0])
	if err != nil {
		return resultOf(err)
	}
	kind := vfs.KindFile
	if info.IsDirectory {
		kind = vfs.KindDirectory
	}
	return fmt.Sprintf("inode=%d kind=%s size=%d references=%d direct=%v indirect=%v",
		info.InodeID, kind, info.FileSize, info.References, info.DirectBlocks, info.IndirectBlocks)
}

// resultOf renders a DriverError (or nil) as the single-line result text
// spec.md §7 calls for: "OK" or a kind-specific message.
func resultOf(err vfs.DriverError) string {
	if err == nil {
		return "OK"
	}
	switch {
	case errors.Is(err, vfs.ErrPathNotFound):
		return "PATH NOT FOUND"
	case errors.Is(err, vfs.ErrFileNotFound):
		return "FILE NOT FOUND"
	case errors.Is(err, vfs.ErrItemNotFound):
		return "ITEM NOT FOUND"
	case errors.Is(err, vfs.ErrDirectoryNotFound):
		return "DIRECTORY NOT FOUND"
	case errors.Is(err, vfs.ErrExists):
		return "EXIST"
	case errors.Is(err, vfs.ErrNotEmpty):
		return "NOT EMPTY"
	case errors.Is(err, vfs.ErrNameTooLong):
		return "NAME TOO LONG"
	case errors.Is(err, vfs.ErrNoFreeInodes):
		return "NO FREE INODES"
	case errors.Is(err, vfs.ErrNoSpace):
		return "NOT ENOUGH SPACE"
	case errors.Is(err, vfs.ErrFileTooLarge):
		return "FILE TOO LARGE"
	case errors.Is(err, vfs.ErrInvalidSize):
		return "INVALID SIZE"
	case errors.Is(err, vfs.ErrNotAvailable):
		return "NOT AVAILABLE"
	case errors.Is(err, vfs.ErrInvalidArgument):
		return "INVALID ARGUMENT"
	case errors.Is(err, vfs.ErrIO):
		return "IO ERROR"
	default:
		return err.Error()
	}
}

// ParseSize parses a decimal size string with an optional K/M/G suffix
// (multiplying by 1000, 1,000,000, or 1,000,000,000 respectively), the
// format spec.md §6 requires for `format`'s argument.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	suffix := s[len(s)-1]
	multiplier := int64(1)
	numeric := s
	switch suffix {
	case 'K', 'k':
		multiplier = 1000
		numeric = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1000 * 1000
		numeric = s[:len(s)-1]
	case 'G', 'g':
		multiplier = 1000 * 1000 * 1000
		numeric = s[:len(s)-1]
	}

	value, perr := strconv.ParseInt(numeric, 10, 64)
	if perr != nil {
		return 0, fmt.Errorf("invalid size string %q: %w", s, perr)
	}
	return value * multiplier, nil
}
