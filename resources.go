package hatsetup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	rice "github.com/GeertJohan/go.rice"
)

var resourcesBox *rice.Box

// openBoxes locates the embedded resources payload. For go.rice's 'append'
// mode to work, all calls to FindBox() have to be with a literal string
// parameter.
func openBoxes() {
	var err error
	resourcesBox, err = rice.FindBox("resources")
	if err != nil {
		panic(err)
	}
}

// GetResource returns a string resource from the resources box.
func GetResource(name string) (string, error) {
	return getBoxResourceFiltered(resourcesBox, name, regexp.MustCompile(`.*`))
}

// MustGetResource returns a string resource and panics if it is missing. Use
// only for resources without which the application cannot run at all.
func MustGetResource(name string) string {
	str, err := GetResource(name)
	if err != nil {
		panic(err)
	}
	return str
}

// GetResourceFiltered returns a map of resource names to contents, for all
// resources inside the given directory whose paths match the filter.
func GetResourceFiltered(name string, dirFilter *regexp.Regexp) (StringMap, error) {
	listing, err := getBoxResourceFiltered(resourcesBox, name, dirFilter)
	if err != nil {
		return nil, err
	}
	resources := make(StringMap)
	for _, path := range strings.Split(listing, "\n") {
		if path == "" {
			continue
		}
		content, err := GetResource(path)
		if err == nil {
			resources[path] = content
		}
	}
	return resources, nil
}

// MustGetResourceFiltered is GetResourceFiltered for resources without which
// the application cannot run.
func MustGetResourceFiltered(name string, dirFilter *regexp.Regexp) StringMap {
	resources, err := GetResourceFiltered(name, dirFilter)
	if err != nil {
		panic(err)
	}
	return resources
}

// UnpackResourceDir copies a resource directory out of the box into a real
// directory, e.g. for files which GTK can only load from disk.
func UnpackResourceDir(boxDir, outDir string) error {
	if resourcesBox == nil {
		return fmt.Errorf("resource box not opened")
	}
	return resourcesBox.Walk(boxDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimPrefix(path, boxDir))
		if info.IsDir() {
			return os.MkdirAll(outPath, 0755)
		}
		content, err := resourcesBox.Bytes(path)
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, content, 0644)
	})
}

// getBoxResourceFiltered returns the contents of a file in the box, or, if
// the name refers to a directory, a newline-separated listing of the files
// inside it which match dirFilter.
func getBoxResourceFiltered(box *rice.Box, name string, dirFilter *regexp.Regexp) (string, error) {
	if box == nil {
		return "", fmt.Errorf("resource box not opened")
	}
	text, err := box.String(name)
	if err != nil {
		contents := []string{}
		err = box.Walk(name, func(path string, info os.FileInfo, err error) error {
			if path != name {
				if dirFilter.FindStringIndex(path) != nil {
					contents = append(contents, path)
				}
				if info.IsDir() {
					return filepath.SkipDir
				}
			}
			return nil
		})
		if err == nil {
			text = strings.Join(contents, "\n")
		}
	}
	if err != nil {
		return "", fmt.Errorf("%s not found", name)
	}
	return text, nil
}
