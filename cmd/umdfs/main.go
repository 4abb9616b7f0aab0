package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"umdfs/internal/config"
	"umdfs/internal/extract"
	"umdfs/internal/fs"
	"umdfs/internal/iso"
	"umdfs/internal/logging"
)

var (
	logger = logging.GetLogger()
)

const usage = `usage: umdfs [flags] <image> <command> [args]
       umdfs [flags] recent

commands:
  info                 show the volume descriptor and container format
  ls [path]            list a directory
  stat <path>          describe a file or directory
  cat <path>           write a file to stdout
  preview <path>       hex dump the first 64 bytes of a file
  extract <src> <dst>  copy a subtree to a host directory
  mount <mountpoint>   serve the image read-only through FUSE

flags:
`

var errUsage = errors.New("invalid arguments")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the exit status
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("umdfs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", config.DefaultPath(), "Settings file path")
	verbose := flags.Bool("verbose", false, "Enable verbose logging")
	caseSensitive := flags.Bool("case-sensitive", false, "Match file names exactly")
	workers := flags.Int("workers", 0, "Concurrent copies for extract (0 uses the settings file)")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	manager, err := config.NewManager(*configPath)
	if err != nil {
		logger.Error("Failed to initialize config manager: %v", err)
		return 1
	}
	cfg, err := manager.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return 1
	}

	// Configure logging based on settings and flags
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}
	if *verbose {
		logger.SetLevel(logging.LevelDebug)
	}
	if *caseSensitive {
		cfg.CaseSensitive = true
	}
	if *workers > 0 {
		cfg.ExtractWorkers = *workers
	}

	rest := flags.Args()
	if len(rest) == 1 && rest[0] == "recent" {
		return printRecent(stdout, cfg)
	}
	if len(rest) < 2 {
		flags.Usage()
		return 2
	}

	imagePath, command, cmdArgs := rest[0], rest[1], rest[2:]
	logger.Debug("Image: %s, command: %s %v", imagePath, command, cmdArgs)

	fsys, err := iso.Load(imagePath, iso.Options{
		CaseSensitive:  cfg.CaseSensitive,
		FrameCacheSize: cfg.FrameCacheSize,
	})
	if err != nil {
		fmt.Fprintf(stderr, "umdfs: %s: %v\n", imagePath, err)
		return 1
	}
	defer fsys.Close()

	recordRecent(manager, cfg, imagePath, fsys)

	err = dispatch(fsys, cfg, command, cmdArgs, stdout)
	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "umdfs: %v\n", err)
		flags.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "umdfs: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(fsys *iso.FileSystem, cfg *config.Config, command string, args []string, stdout io.Writer) error {
	switch command {
	case "info":
		if len(args) != 0 {
			return fmt.Errorf("%w: info takes no arguments", errUsage)
		}
		return printInfo(stdout, fsys)
	case "ls":
		p := "/"
		if len(args) > 1 {
			return fmt.Errorf("%w: ls takes at most one path", errUsage)
		}
		if len(args) == 1 {
			p = args[0]
		}
		return printListing(stdout, fsys, p)
	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("%w: stat takes one path", errUsage)
		}
		return printStat(stdout, fsys, args[0])
	case "cat":
		if len(args) != 1 {
			return fmt.Errorf("%w: cat takes one path", errUsage)
		}
		return cat(stdout, fsys, args[0])
	case "preview":
		if len(args) != 1 {
			return fmt.Errorf("%w: preview takes one path", errUsage)
		}
		return preview(stdout, fsys, args[0])
	case "extract":
		if len(args) != 2 {
			return fmt.Errorf("%w: extract takes a source and a destination", errUsage)
		}
		res, err := extract.Extract(context.Background(), fsys, args[0], args[1], cfg.ExtractWorkers)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d files, %d directories, %d bytes\n", res.Files, res.Dirs, res.Bytes)
		return nil
	case "mount":
		if len(args) != 1 {
			return fmt.Errorf("%w: mount takes a mount point", errUsage)
		}
		return mount(fsys, filepath.Clean(args[0]))
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func recordRecent(manager *config.Manager, cfg *config.Config, imagePath string, fsys *iso.FileSystem) {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		abs = imagePath
	}
	cfg.AddRecent(config.RecentImage{
		Path:     abs,
		Label:    fsys.Volume().Label,
		Format:   fsys.Device().Format().String(),
		LoadedAt: time.Now().UTC(),
	})
	if err := manager.Save(cfg); err != nil {
		logger.Warn("Failed to record recent image: %v", err)
	}
}

func printRecent(w io.Writer, cfg *config.Config) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range cfg.Recent {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.LoadedAt.Format(time.RFC3339), r.Format, r.Label, r.Path)
	}
	tw.Flush()
	return 0
}

func printInfo(w io.Writer, fsys *iso.FileSystem) error {
	vd := fsys.Volume()
	dev := fsys.Device()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Label:\t%s\n", vd.Label)
	fmt.Fprintf(tw, "System:\t%s\n", vd.SystemID)
	fmt.Fprintf(tw, "Publisher:\t%s\n", vd.Publisher)
	fmt.Fprintf(tw, "Preparer:\t%s\n", vd.DataPreparer)
	fmt.Fprintf(tw, "Application:\t%s\n", vd.Application)
	if !vd.Created.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", vd.Created.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "Format:\t%s\n", dev.Format())
	fmt.Fprintf(tw, "Blocks:\t%d (volume says %d)\n", dev.NumBlocks(), vd.SpaceSize)
	fmt.Fprintf(tw, "Size:\t%d bytes\n", dev.UncompressedSize())
	fmt.Fprintf(tw, "Game:\t%s\n", gameLayout(fsys))
	return tw.Flush()
}

// gameLayout reports which of the files a PSP needs to boot the disc are present
func gameLayout(fsys *iso.FileSystem) string {
	var found, missing []string

	switch {
	case fsys.GetFileInfo("/PSP_GAME/SYSDIR/EBOOT.BIN").Exists:
		found = append(found, "EBOOT.BIN")
	case fsys.GetFileInfo("/PSP_GAME/SYSDIR/BOOT.BIN").Exists:
		found = append(found, "BOOT.BIN")
		missing = append(missing, "EBOOT.BIN")
	default:
		missing = append(missing, "EBOOT.BIN")
	}
	if fsys.GetFileInfo("/PSP_GAME/PARAM.SFO").Exists {
		found = append(found, "PARAM.SFO")
	} else {
		missing = append(missing, "PARAM.SFO")
	}

	if len(found) == 0 {
		return "not a PSP game layout"
	}
	out := strings.Join(found, ", ")
	if len(missing) > 0 {
		out += " (missing " + strings.Join(missing, ", ") + ")"
	}
	return out
}

func printListing(w io.Writer, fsys *iso.FileSystem, p string) error {
	list, err := fsys.ReadDir(p)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, fi := range list {
		kind := "-"
		if fi.IsDir() {
			kind = "d"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t %s\n", kind, fi.StartSector, fi.Size, fi.Name)
	}
	return tw.Flush()
}

func printStat(w io.Writer, fsys *iso.FileSystem, p string) error {
	fi, err := fsys.Stat(p)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", fi.Path)
	fmt.Fprintf(tw, "Type:\t%s\n", fi.Type)
	fmt.Fprintf(tw, "Size:\t%d\n", fi.Size)
	fmt.Fprintf(tw, "Sectors:\t%d+%d\n", fi.StartSector, fi.NumSectors)
	if !fi.ModTime.IsZero() {
		fmt.Fprintf(tw, "Modified:\t%s\n", fi.ModTime.Format(time.RFC3339))
	}
	if fi.Hidden {
		fmt.Fprintf(tw, "Hidden:\tyes\n")
	}
	return tw.Flush()
}

func cat(w io.Writer, fsys *iso.FileSystem, p string) error {
	f, err := fsys.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

const previewSize = 64

func preview(w io.Writer, fsys *iso.FileSystem, p string) error {
	f, err := fsys.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, previewSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	_, err = io.WriteString(w, hex.Dump(buf[:n]))
	return err
}

func mount(fsys *iso.FileSystem, mountPoint string) error {
	vfs := fs.NewISOFS(fsys)

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Mounting filesystem...")
	if err := vfs.Mount(mountPoint); err != nil {
		return err
	}
	logger.Info("Filesystem mounted and ready")

	// Wait for signal
	sig := <-sigChan
	logger.Info("Received signal %v", sig)
	if err := vfs.Unmount(mountPoint); err != nil {
		return err
	}

	logger.Info("Clean shutdown complete")
	return nil
}
