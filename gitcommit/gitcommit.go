package gitcommit

import (
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/log"
)

// Fields are NUL separated, the message comes last as it may span lines.
const logFormat = "%H%x00%h%x00%an%x00%ae%x00%B"

const placeholder = "Unable to retrieve commit message"

// Summary ...
type Summary struct {
	ID          string
	ShortID     string
	AuthorName  string
	AuthorEmail string
	Message     string
}

// Reader reads the HEAD commit of the git repository in a directory.
type Reader struct {
	dir        string
	cmdFactory command.Factory
}

// NewReader ...
func NewReader(dir string, cmdFactory command.Factory) Reader {
	return Reader{dir: dir, cmdFactory: cmdFactory}
}

// Head ...
func (r Reader) Head() (Summary, error) {
	cmd := r.cmdFactory.Create("git", []string{"log", "-1", "--format=" + logFormat}, &command.Opts{Dir: r.dir})
	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		return Summary{}, fmt.Errorf("%s failed: %s, %w", cmd.PrintableCommandArgs(), out, err)
	}
	return parseSummary(out)
}

func parseSummary(out string) (Summary, error) {
	fields := strings.SplitN(out, "\x00", 5)
	if len(fields) != 5 {
		return Summary{}, fmt.Errorf("unexpected git log output: %q", out)
	}
	return Summary{
		ID:          fields[0],
		ShortID:     fields[1],
		AuthorName:  fields[2],
		AuthorEmail: fields[3],
		Message:     strings.TrimSpace(fields[4]),
	}, nil
}

// HeadReader ...
type HeadReader interface {
	Head() (Summary, error)
}

// Annotator formats the HEAD commit for upload comments.
type Annotator struct {
	reader HeadReader
	logger log.Logger
}

// NewAnnotator ...
func NewAnnotator(reader HeadReader, logger log.Logger) Annotator {
	return Annotator{reader: reader, logger: logger}
}

// Annotation returns the commit block, or an empty string when disabled.
// A commit that cannot be read yields a placeholder, never an error.
func (a Annotator) Annotation(enabled bool) string {
	if !enabled {
		return ""
	}

	summary, err := a.reader.Head()
	if err != nil {
		a.logger.Warnf("Failed to read last commit: %s", err)
		return placeholder
	}
	return Format(summary)
}

// Format ...
func Format(s Summary) string {
	return fmt.Sprintf("🔑 *Commit ID*: %s\n👤 *Author*: %s <%s>\n✉️ *Message*:\n%s",
		s.ShortID,
		orDefault(s.AuthorName, "Unknown"),
		orDefault(s.AuthorEmail, "Unknown"),
		orDefault(s.Message, "No commit message"),
	)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
