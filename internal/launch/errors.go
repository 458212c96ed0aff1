package launch

import "fmt"

func errNonEmpty(field string) error { return fmt.Errorf("%s must not be empty", field) }
func errAbs(field string) error      { return fmt.Errorf("%s must be an absolute path", field) }
func errNotDir(path string) error    { return fmt.Errorf("%s is not a directory", path) }
func errHostname(h string) error {
	return fmt.Errorf("hostname %q is not filesystem-safe or too long", h)
}
