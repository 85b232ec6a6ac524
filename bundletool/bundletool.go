package bundletool

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/log"
	"github.com/bitrise-io/go-utils/pathutil"
)

// DefaultVersion is the bundletool release used when none is configured.
const DefaultVersion = "1.13.1"

const (
	outputDirName    = "output_apks"
	apksFileName     = "output.apks"
	universalDirName = "universal"
	universalAPKName = "universal.apk"
)

// ErrJavaNotFound is returned when no Java runtime is available to run bundletool.
var ErrJavaNotFound = errors.New("java runtime not found, install a JDK before extracting APKs")

// Config ...
type Config struct {
	// WorkDir holds the downloaded jar and the build outputs.
	WorkDir     string
	Version     string
	DownloadURL string
	JavaPath    string
	UnzipPath   string
	ExtraArgs   []string
}

// Tool builds universal APKs from app bundles with bundletool.
type Tool struct {
	cfg        Config
	httpClient *http.Client
	cmdFactory command.Factory
	logger     log.Logger
}

// New ...
func New(cfg Config, httpClient *http.Client, cmdFactory command.Factory, logger log.Logger) *Tool {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = DownloadURL(cfg.Version)
	}
	if cfg.JavaPath == "" {
		cfg.JavaPath = "java"
	}
	if cfg.UnzipPath == "" {
		cfg.UnzipPath = "unzip"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &Tool{cfg: cfg, httpClient: httpClient, cmdFactory: cmdFactory, logger: logger}
}

// DownloadURL returns the GitHub release URL of the bundletool jar.
func DownloadURL(version string) string {
	return fmt.Sprintf("https://github.com/google/bundletool/releases/download/%s/bundletool-all-%s.jar", version, version)
}

// JarPath ...
func (t *Tool) JarPath() string {
	return filepath.Join(t.cfg.WorkDir, fmt.Sprintf("bundletool-all-%s.jar", t.cfg.Version))
}

// UniversalAPKPath is where BuildUniversalAPK leaves its result.
func (t *Tool) UniversalAPKPath() string {
	return filepath.Join(t.cfg.WorkDir, outputDirName, universalDirName, universalAPKName)
}

// BuildUniversalAPK extracts a universal APK from the app bundle at aabPath.
func (t *Tool) BuildUniversalAPK(aabPath string) (string, error) {
	if _, err := exec.LookPath(t.cfg.JavaPath); err != nil {
		return "", ErrJavaNotFound
	}

	exists, err := pathutil.IsPathExists(aabPath)
	if err != nil {
		return "", fmt.Errorf("failed to check path, error: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("AAB file not found at %s", aabPath)
	}

	if err := t.ensureJar(); err != nil {
		return "", err
	}

	outputDir := filepath.Join(t.cfg.WorkDir, outputDirName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	apksPath := filepath.Join(outputDir, apksFileName)

	args := []string{
		"-jar", t.JarPath(),
		"build-apks",
		"--bundle=" + aabPath,
		"--output=" + apksPath,
		"--mode=universal",
		"--overwrite",
	}
	args = append(args, t.cfg.ExtraArgs...)
	if err := t.run(t.cfg.JavaPath, args); err != nil {
		return "", fmt.Errorf("failed to execute bundletool: %w", err)
	}

	universalDir := filepath.Join(outputDir, universalDirName)
	if err := os.MkdirAll(universalDir, 0755); err != nil {
		return "", err
	}
	if err := t.run(t.cfg.UnzipPath, []string{"-o", apksPath, universalAPKName, "-d", universalDir}); err != nil {
		return "", fmt.Errorf("failed to extract APK: %w", err)
	}

	apkPath := t.UniversalAPKPath()
	exists, err = pathutil.IsPathExists(apkPath)
	if err != nil {
		return "", fmt.Errorf("failed to check path, error: %w", err)
	}
	if !exists {
		return "", errors.New("APK extraction failed; file not found")
	}
	return apkPath, nil
}

func (t *Tool) run(name string, args []string) error {
	cmd := t.cmdFactory.Create(name, args, &command.Opts{})
	t.logger.Donef("$ %s", cmd.PrintableCommandArgs())

	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		return fmt.Errorf("%s, %w", out, err)
	}
	t.logger.Debugf("%s", out)
	return nil
}

func (t *Tool) ensureJar() error {
	jarPath := t.JarPath()
	exists, err := pathutil.IsPathExists(jarPath)
	if err != nil {
		return fmt.Errorf("failed to check path, error: %w", err)
	}
	if exists {
		t.logger.Printf("Bundletool already exists at %s", jarPath)
		return nil
	}

	if err := os.MkdirAll(t.cfg.WorkDir, 0755); err != nil {
		return err
	}

	t.logger.Printf("Downloading bundletool from %s", t.cfg.DownloadURL)
	resp, err := t.httpClient.Get(t.cfg.DownloadURL)
	if err != nil {
		return fmt.Errorf("failed to download bundletool: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.Warnf("Failed to close response body: %s", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download bundletool: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(t.cfg.WorkDir, "bundletool-*.jar.part")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to download bundletool: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), jarPath); err != nil {
		return err
	}

	t.logger.Donef("Bundletool downloaded successfully.")
	return nil
}
