//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Prints the scene graph of a document.
func (Run) Inspect(doc string) error {
	mg.Deps(Build.Binary)
	_, err := executeCmd("bin/prism", withArgs("inspect", doc), withStream())
	return err
}

// Uploads a document to the in-memory device and records one frame.
func (Run) DryRun(doc string) error {
	mg.Deps(Build.Binary)
	_, err := executeCmd("bin/prism", withArgs("upload", "--dry-run", doc), withStream())
	return err
}

// Uploads a document to the GPU and reloads it on every change.
func (Run) Watch(doc string) error {
	mg.Deps(Build.Binary)
	fmt.Println("Watching", doc, "(ctrl+c to stop)...")
	_, err := executeCmd("bin/prism", withArgs("watch", doc), withStream())
	return err
}
