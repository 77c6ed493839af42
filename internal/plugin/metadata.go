package plugin

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/reckless/internal/config"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// MetadataFile is written into every install directory.
const MetadataFile = ".metadata"

const none = "None"

const (
	keyDate            = "installation date"
	keyTime            = "installation time"
	keySource          = "original source"
	keyRequestedCommit = "requested commit"
	keyInstalledCommit = "installed commit"
)

// Metadata records how a plugin was installed. Empty commits mean none was
// requested, or the source was not a repository.
type Metadata struct {
	InstalledAt     time.Time `validate:"required"`
	OriginalSource  string    `validate:"required"`
	RequestedCommit string
	InstalledCommit string
}

// NewMetadata builds the record for d installed at now.
func NewMetadata(d Descriptor, now time.Time) Metadata {
	return Metadata{
		InstalledAt:     now,
		OriginalSource:  strings.TrimSpace(d.Source),
		RequestedCommit: d.RequestedCommit,
		InstalledCommit: d.InstalledCommit,
	}
}

// Validate ensures the record has an installation time and a source.
func (m Metadata) Validate() error {
	err := config.GetValidator().Struct(m)
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return recklesserrors.NewValidationError(ves[0].Field(), fmt.Sprintf("metadata %s failed validation for tag '%s'", ves[0].Field(), ves[0].Tag()), err)
	}
	if err != nil {
		return recklesserrors.NewValidationError("metadata", err.Error(), err)
	}
	return nil
}

// Marshal renders alternating key and value lines.
func (m Metadata) Marshal() []byte {
	var buf bytes.Buffer
	for _, kv := range [][2]string{
		{keyDate, m.InstalledAt.Format(time.DateOnly)},
		{keyTime, strconv.FormatInt(m.InstalledAt.Unix(), 10)},
		{keySource, m.OriginalSource},
		{keyRequestedCommit, orNone(m.RequestedCommit)},
		{keyInstalledCommit, orNone(m.InstalledCommit)},
	} {
		buf.WriteString(kv[0])
		buf.WriteByte('\n')
		buf.WriteString(kv[1])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteMetadata stores m in dir.
func WriteMetadata(dir string, m Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), m.Marshal(), 0o644)
}

// ReadMetadata loads the record from dir.
func ReadMetadata(dir string) (Metadata, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	return ParseMetadata(path, data)
}

// ParseMetadata decodes the alternating-lines format. Unknown keys are ignored.
func ParseMetadata(path string, data []byte) (Metadata, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, recklesserrors.NewParseError(path, 0, err)
	}
	if len(lines)%2 != 0 {
		return Metadata{}, recklesserrors.NewParseError(path, len(lines), fmt.Errorf("key %q has no value", lines[len(lines)-1]))
	}

	var m Metadata
	for i := 0; i < len(lines); i += 2 {
		value := lines[i+1]
		switch lines[i] {
		case keyTime:
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Metadata{}, recklesserrors.NewParseError(path, i+2, fmt.Errorf("invalid installation time %q", value))
			}
			m.InstalledAt = time.Unix(secs, 0)
		case keySource:
			m.OriginalSource = value
		case keyRequestedCommit:
			m.RequestedCommit = fromNone(value)
		case keyInstalledCommit:
			m.InstalledCommit = fromNone(value)
		}
	}
	return m, nil
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func fromNone(s string) string {
	if s == none {
		return ""
	}
	return s
}
