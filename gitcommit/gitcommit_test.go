package gitcommit

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/env"
	"github.com/bitrise-io/go-utils/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	summary Summary
	err     error
	calls   int
}

func (r *stubReader) Head() (Summary, error) {
	r.calls++
	return r.summary, r.err
}

func Test_GivenDisabled_WhenAnnotating_ThenEmptyAndGitIsNotRead(t *testing.T) {
	reader := &stubReader{}
	annotator := NewAnnotator(reader, log.NewLogger())

	assert.Equal(t, "", annotator.Annotation(false))
	assert.Equal(t, 0, reader.calls)
}

func Test_GivenReadError_WhenAnnotating_ThenPlaceholder(t *testing.T) {
	annotator := NewAnnotator(&stubReader{err: errors.New("not a git repository")}, log.NewLogger())

	assert.Equal(t, "Unable to retrieve commit message", annotator.Annotation(true))
}

func Test_GivenCommit_WhenAnnotating_ThenCommitBlockIsFormatted(t *testing.T) {
	reader := &stubReader{summary: Summary{
		ID:          "0a1b2c3d4e5f60718293a4b5c6d7e8f901234567",
		ShortID:     "0a1b2c3",
		AuthorName:  "Jane Doe",
		AuthorEmail: "jane@example.com",
		Message:     "Fix crash on launch",
	}}
	annotator := NewAnnotator(reader, log.NewLogger())

	want := "🔑 *Commit ID*: 0a1b2c3\n👤 *Author*: Jane Doe <jane@example.com>\n✉️ *Message*:\nFix crash on launch"
	assert.Equal(t, want, annotator.Annotation(true))
}

func Test_parseSummary(t *testing.T) {
	t.Log("multi-line message")
	{
		summary, err := parseSummary("abc123def\x00abc123d\x00Jane Doe\x00jane@example.com\x00Subject\n\nBody line")
		require.NoError(t, err)
		assert.Equal(t, Summary{
			ID:          "abc123def",
			ShortID:     "abc123d",
			AuthorName:  "Jane Doe",
			AuthorEmail: "jane@example.com",
			Message:     "Subject\n\nBody line",
		}, summary)
	}

	t.Log("unexpected output")
	{
		_, err := parseSummary("fatal: not a git repository")
		require.Error(t, err)
	}
}

func Test_GivenNonRepositoryDir_WhenReadingHead_ThenError(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	reader := NewReader(t.TempDir(), command.NewFactory(env.NewRepository()))

	_, err := reader.Head()
	require.Error(t, err)

	annotator := NewAnnotator(reader, log.NewLogger())
	assert.Equal(t, "Unable to retrieve commit message", annotator.Annotation(true))
}

func Test_GivenRepository_WhenReadingHead_ThenLastCommitIsReturned(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"-c", "user.name=Jane Doe", "-c", "user.email=jane@example.com", "commit", "-q", "--allow-empty", "-m", "Initial commit"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	reader := NewReader(dir, command.NewFactory(env.NewRepository()))

	summary, err := reader.Head()

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", summary.AuthorName)
	assert.Equal(t, "jane@example.com", summary.AuthorEmail)
	assert.Equal(t, "Initial commit", summary.Message)
	assert.Len(t, summary.ID, 40)
	assert.True(t, len(summary.ShortID) >= 7)
}
