package tool

import "os"

func Write(name string, data []byte) error {
	return os.WriteFile(name, data, 0o644)
}
