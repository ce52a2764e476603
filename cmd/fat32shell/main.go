package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/vfs"
)

func main() {
	app := &cli.App{
		Usage: "Inspect and manipulate a mounted FAT32 volume image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "path to the disk image file",
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "write a fresh FAT32 image sized from a named geometry preset",
				Action:    format,
				ArgsUsage: "SLUG",
			},
			{
				Name:      "mount-info",
				Usage:     "print the computed BPB-derived layout of the volume",
				Action:    mountInfo,
				ArgsUsage: " ",
			},
			{
				Name:      "ls",
				Usage:     "list a directory's children",
				Action:    ls,
				ArgsUsage: "[PATH]",
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents",
				Action:    cat,
				ArgsUsage: "PATH",
			},
			{
				Name:      "touch",
				Usage:     "create an empty file",
				Action:    touch,
				ArgsUsage: "PATH",
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory",
				Action:    mkdir,
				ArgsUsage: "PATH",
			},
			{
				Name:      "rm",
				Usage:     "delete a file or an empty directory",
				Action:    rm,
				ArgsUsage: "PATH",
			},
			{
				Name:      "mv",
				Usage:     "move a node to a new parent directory",
				Action:    mv,
				ArgsUsage: "SRC DESTDIR",
			},
			{
				Name:      "sync",
				Usage:     "flush a file's dirty pages to the image",
				Action:    syncFile,
				ArgsUsage: "PATH",
			},
			{
				Name:      "invalidate",
				Usage:     "re-flush the volume's root metadata",
				Action:    invalidate,
				ArgsUsage: " ",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fat32shell: %s", err.Error())
	}
}

// openVolume opens the image named by the --image flag and mounts it.
func openVolume(c *cli.Context) (*vfs.Node, error) {
	path := c.String("image")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	// The image file itself is the backing store, so every write the driver
	// makes lands in the file. It stays open until the process exits.
	device := blockio.NewDevice(f)
	root, derr := vfs.Mount(device, vfs.DefaultMountOptions())
	if derr != nil {
		f.Close()
		return nil, fmt.Errorf("mounting: %w", derr)
	}
	return root, nil
}

// resolvePath walks path's "/"-separated components from root, since the
// VFS tree here is a plain node graph with no path-resolution layer of its
// own. This is CLI-local convenience, not something the library provides.
func resolvePath(root *vfs.Node, path string) (*vfs.Node, errs.DriverError) {
	path = strings.Trim(path, "/")
	node := root
	if path == "" {
		return node, nil
	}

	for _, part := range strings.Split(path, "/") {
		var next *vfs.Node
		for _, child := range node.Children {
			if child.Name == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil, errs.New(errs.ErrNotFound).WithMessage(part)
		}
		node = next
	}
	return node, nil
}

func splitParentAndName(path string) (string, string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func mountInfo(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}
	mount, ok := root.Kind.(*vfs.MountState)
	if !ok {
		return fmt.Errorf("mount-info: root node has unexpected kind")
	}

	fmt.Printf("partition offset: %d\n", mount.PartitionOffset)
	fmt.Printf("fat lba:           %d\n", mount.FATLBA)
	fmt.Printf("cluster lba:       %d\n", mount.ClusterLBA)
	fmt.Printf("root cluster:      %d\n", mount.RootDirFirstCluster)
	fmt.Printf("total clusters:    %d\n", mount.TotalClusters)
	return nil
}

func ls(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	dir, derr := resolvePath(root, path)
	if derr != nil {
		return derr
	}

	for _, child := range dir.Children {
		kind := "f"
		if child.Attributes.IsDirectory() {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, child.Length, child.Name)
	}
	return nil
}

func cat(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	node, derr := resolvePath(root, c.Args().First())
	if derr != nil {
		return derr
	}
	if derr := vfs.Open(node); derr != nil {
		return derr
	}

	buf := make([]byte, node.Length)
	if _, derr := vfs.Read(node, 0, node.Length, buf); derr != nil {
		return derr
	}
	os.Stdout.Write(buf)
	return nil
}

func touch(c *cli.Context) error {
	return createPath(c, false)
}

func mkdir(c *cli.Context) error {
	return createPath(c, true)
}

func createPath(c *cli.Context, isDir bool) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	parentPath, name := splitParentAndName(c.Args().First())
	parent, derr := resolvePath(root, parentPath)
	if derr != nil {
		return derr
	}

	_, derr = vfs.CreateNode(parent, name, isDir)
	return derr
}

func rm(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	node, derr := resolvePath(root, c.Args().First())
	if derr != nil {
		return derr
	}
	return vfs.DeleteNode(node)
}

func mv(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	node, derr := resolvePath(root, c.Args().Get(0))
	if derr != nil {
		return derr
	}
	destDir, derr := resolvePath(root, c.Args().Get(1))
	if derr != nil {
		return derr
	}
	return vfs.MoveNode(node, destDir)
}

func syncFile(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}

	node, derr := resolvePath(root, c.Args().First())
	if derr != nil {
		return derr
	}
	if !node.Opened {
		if derr := vfs.Open(node); derr != nil {
			return derr
		}
	}
	return vfs.Sync(node, 1, 0)
}

func invalidate(c *cli.Context) error {
	root, err := openVolume(c)
	if err != nil {
		return err
	}
	return vfs.Ioctl(root, vfs.IoctlInvalidate, nil)
}
