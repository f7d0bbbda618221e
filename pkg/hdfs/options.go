package hdfs

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/objectfs/hdfsclient/internal/metrics"
	"github.com/objectfs/hdfsclient/pkg/errors"
	"github.com/objectfs/hdfsclient/pkg/native"
	"github.com/objectfs/hdfsclient/pkg/utils"
)

// Defaults applied when an option is left at its zero value.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8020

	// DefaultMode is rw-r--r-- in decimal-digit form.
	DefaultMode = 644

	DefaultReplication = 3

	// MaxReadLength is the most a single Read or ReadAt may request.
	MaxReadLength = 131072
)

// ConnectOptions enumerates everything Connect accepts. Host and Port are
// ignored, and not validated, for local sessions.
type ConnectOptions struct {
	Local bool   `yaml:"local"`
	Host  string `yaml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port  int    `yaml:"port" validate:"gte=0,lte=65535"`
	User  string `yaml:"user" validate:"omitempty,max=1024"`

	// Driver overrides the process-wide driver registered with native.Init.
	Driver native.Driver `yaml:"-" validate:"-"`

	Logger  *utils.StructuredLogger `yaml:"-" validate:"-"`
	Metrics *metrics.Collector      `yaml:"-" validate:"-"`
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Local {
		o.Host, o.Port = "", 0
	} else {
		if o.Host == "" {
			o.Host = DefaultHost
		}
		if o.Port == 0 {
			o.Port = DefaultPort
		}
	}
	if o.User == "" {
		o.User = currentUser()
	}
	if o.Logger == nil {
		o.Logger = utils.NewNopLogger()
	}
	return o
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// OpenOptions tunes a newly opened stream. Zero means the filesystem default.
type OpenOptions struct {
	BufferSize  int   `yaml:"buffer_size" validate:"gte=0"`
	Replication int16 `yaml:"replication" validate:"gte=0,lte=512"`
	BlockSize   int64 `yaml:"block_size" validate:"gte=0"`
}

// OpenMode selects how Open opens a path.
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeAppend
)

// String returns the mode letter accepted by ParseOpenMode.
func (m OpenMode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeAppend:
		return "a"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

func (m OpenMode) flags() (int, bool) {
	switch m {
	case ModeRead:
		return native.O_RDONLY, true
	case ModeWrite:
		return native.O_WRONLY, true
	case ModeAppend:
		return native.O_APPEND, true
	default:
		return 0, false
	}
}

// ParseOpenMode maps "r", "w" and "a" to an OpenMode.
func ParseOpenMode(s string) (OpenMode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "a":
		return ModeAppend, nil
	default:
		return 0, argumentError("open", "Mode must be 'r', 'w' or 'a', got %q", s)
	}
}

// UtimeOptions names the timestamps Utime sets. A nil field is left unchanged.
type UtimeOptions struct {
	Atime *time.Time
	Mtime *time.Time
}

func unixOrUnchanged(t *time.Time) int64 {
	if t == nil {
		return native.TimeUnchanged
	}
	return t.Unix()
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func validateOptions(operation string, v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return argumentError(operation, "%s", formatValidationError(err))
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) string {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Sprintf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err.Error()
}

func argumentError(operation, format string, args ...interface{}) *errors.DFSError {
	return errors.Newf(errors.ErrCodeArgument, format, args...).
		WithComponent(component).
		WithOperation(operation)
}
