package platform

import "os"

func Remove(name string) error {
	return os.Remove(name)
}
