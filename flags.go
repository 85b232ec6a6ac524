package main

import (
	"fmt"

	"github.com/bitrise-io/go-utils/env"
	"github.com/spf13/pflag"
)

// flagBinding ties a command line flag to the step input env var it overrides.
type flagBinding struct {
	name      string
	shorthand string
	envKey    string
	usage     string
	isBool    bool
	// defaultValue is used when neither the flag nor the env var is set.
	defaultValue string
}

var flagBindings = []flagBinding{
	{name: "token", shorthand: "t", envKey: "SLACK_TOKEN", usage: "Slack bot token"},
	{name: "channel", shorthand: "c", envKey: "CHANNEL_ID", usage: "Slack channel ID"},
	{name: "file", shorthand: "f", envKey: "BUILD_FILE_PATH", usage: "Path to the file to upload"},
	{name: "name", shorthand: "n", envKey: "NAME", usage: "Name for the uploaded file"},
	{name: "message", shorthand: "m", envKey: "MESSAGE", usage: "Message to include with the file"},
	{name: "verbose", shorthand: "v", envKey: "INCLUDE_COMMIT_INFO", usage: "Append the last commit to the upload message", isBool: true, defaultValue: "no"},
	{name: "diawi", envKey: "UPLOAD_TO_DIAWI", usage: "Upload .ipa files to Diawi and share the install link", isBool: true, defaultValue: "no"},
	{name: "diawi-token", envKey: "DIAWI_TOKEN", usage: "Diawi API token"},
	{name: "diawi-comment", envKey: "DIAWI_COMMENT", usage: "Comment shown on the Diawi install page"},
	{name: "link-only", envKey: "RELAY_LINK_ONLY", usage: "Only post the Diawi install link, do not upload the .ipa to Slack", isBool: true, defaultValue: "no"},
	{name: "extract-apk", envKey: "EXTRACT_UNIVERSAL_APK", usage: "Build and upload a universal APK for .aab files", isBool: true, defaultValue: "yes"},
	{name: "bundletool-version", envKey: "BUNDLETOOL_VERSION", usage: "bundletool release to download"},
	{name: "bundletool-args", envKey: "BUNDLETOOL_ARGS", usage: "Additional arguments of bundletool build-apks"},
	{name: "java", envKey: "JAVA_PATH", usage: "Java executable used to run bundletool", defaultValue: "java"},
	{name: "work-dir", envKey: "WORK_DIR", usage: "Directory for bundletool and its outputs", defaultValue: "."},
	{name: "export-outputs", envKey: "EXPORT_OUTPUTS", usage: "Export outputs with envman", isBool: true, defaultValue: "no"},
	{name: "debug", envKey: "VERBOSE_LOG", usage: "Enable debug logging", isBool: true, defaultValue: "no"},
}

func registerFlags(flags *pflag.FlagSet) {
	for _, b := range flagBindings {
		if b.isBool {
			flags.BoolP(b.name, b.shorthand, b.defaultValue == "yes", b.usage)
			continue
		}
		flags.StringP(b.name, b.shorthand, b.defaultValue, fmt.Sprintf("%s (env: %s)", b.usage, b.envKey))
	}
}

// applyFlags writes flag values into the env the step inputs are parsed from.
// An explicitly set flag wins over the env var, the env var wins over the flag default.
func applyFlags(flags *pflag.FlagSet, envRepository env.Repository) error {
	for _, b := range flagBindings {
		value, set, err := flagValue(flags, b)
		if err != nil {
			return err
		}

		if !set {
			if envRepository.Get(b.envKey) != "" || b.defaultValue == "" {
				continue
			}
			value = b.defaultValue
		}

		if err := envRepository.Set(b.envKey, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", b.envKey, err)
		}
	}
	return nil
}

func flagValue(flags *pflag.FlagSet, b flagBinding) (string, bool, error) {
	if !flags.Changed(b.name) {
		return "", false, nil
	}

	if !b.isBool {
		value, err := flags.GetString(b.name)
		return value, true, err
	}

	enabled, err := flags.GetBool(b.name)
	if err != nil {
		return "", false, err
	}
	if enabled {
		return "yes", true, nil
	}
	return "no", true, nil
}
