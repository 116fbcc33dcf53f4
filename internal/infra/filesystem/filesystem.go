// Package filesystem reads build artifacts and project files from disk and
// writes reports back.
package filesystem

type (
	Reader interface {
		ReadFile(path string) ([]byte, error)
		ReadJSON(path string, target any) error
	}
	Writer interface {
		WriteJSON(path string, data any) error
		WriteYAML(path string, data any) error
		WriteBytes(path string, data []byte) error
	}
)
