//go:build !unix

package mirror

func checkWritable(string) error {
	return nil
}
