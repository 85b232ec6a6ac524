package step

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-android/gradle"
	"github.com/bitrise-io/go-steputils/stepconf"
	"github.com/bitrise-io/go-steputils/tools"
	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/log"
	"github.com/bitrise-io/go-utils/pathutil"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/kballard/go-shellquote"

	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/artifact"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/bundletool"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/diawi"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/slack"
)

// Input ...
type Input struct {
	SlackToken          stepconf.Secret `env:"SLACK_TOKEN,required"`
	ChannelID           string          `env:"CHANNEL_ID,required"`
	BuildFilePath       string          `env:"BUILD_FILE_PATH,file"`
	Name                string          `env:"NAME"`
	Message             string          `env:"MESSAGE"`
	IncludeCommitInfo   string          `env:"INCLUDE_COMMIT_INFO,opt[yes,no]"`
	UploadToDiawi       string          `env:"UPLOAD_TO_DIAWI,opt[yes,no]"`
	DiawiToken          stepconf.Secret `env:"DIAWI_TOKEN"`
	DiawiComment        string          `env:"DIAWI_COMMENT"`
	RelayLinkOnly       string          `env:"RELAY_LINK_ONLY,opt[yes,no]"`
	ExtractUniversalAPK string          `env:"EXTRACT_UNIVERSAL_APK,opt[yes,no]"`
	BundletoolVersion   string          `env:"BUNDLETOOL_VERSION"`
	BundletoolArgs      string          `env:"BUNDLETOOL_ARGS"`
	JavaPath            string          `env:"JAVA_PATH"`
	WorkDir             string          `env:"WORK_DIR"`
	ExportOutputs       string          `env:"EXPORT_OUTPUTS,opt[yes,no]"`
	VerboseLog          string          `env:"VERBOSE_LOG,opt[yes,no]"`
	DeployDir           string          `env:"BITRISE_DEPLOY_DIR"`
}

// Config ...
type Config struct {
	SlackToken   string
	ChannelID    string
	ArtifactPath string
	DisplayName  string
	Message      string

	IncludeCommitInfo bool

	RelayToDiawi  bool
	DiawiToken    string
	DiawiComment  string
	RelayLinkOnly bool

	ExtractUniversalAPK bool
	Bundletool          bundletool.Config

	ExportOutputs bool
	VerboseLog    bool
	DeployDir     string
}

// Result ...
type Result struct {
	Files            []slack.File
	Relay            *diawi.Result
	UniversalAPKPath string
	bundlePath       string
}

// Deliverer shares files and messages to Slack.
type Deliverer interface {
	Deliver(req slack.UploadRequest) (slack.File, error)
	PostMessage(token, channelID, text string) error
}

// RelayUploader ...
type RelayUploader interface {
	Upload(token, pth, comment string) (diawi.Result, error)
}

// APKBuilder ...
type APKBuilder interface {
	BuildUniversalAPK(aabPath string) (string, error)
}

// EnvExporter ...
type EnvExporter interface {
	ExportEnvironment(key, value string) error
}

type envmanExporter struct{}

func (envmanExporter) ExportEnvironment(key, value string) error {
	return tools.ExportEnvironmentWithEnvman(key, value)
}

// NewEnvmanExporter returns an EnvExporter backed by envman.
func NewEnvmanExporter() EnvExporter {
	return envmanExporter{}
}

const (
	extractedAPKMessage = "*Extracted apk:*"

	slackFileIDEnvKey      = "SLACK_FILE_ID"
	slackFileURLEnvKey     = "SLACK_FILE_URL"
	diawiLinkEnvKey        = "DIAWI_INSTALL_LINK"
	diawiQRCodeEnvKey      = "DIAWI_QR_CODE"
	universalAPKPathEnvKey = "BITRISE_UNIVERSAL_APK_PATH"
)

// ArtifactUpload ...
type ArtifactUpload struct {
	inputParser stepconf.InputParser
	logger      log.Logger
	cmdFactory  command.Factory
	deliverer   Deliverer
	relay       RelayUploader
	exporter    EnvExporter

	newAPKBuilder func(cfg bundletool.Config) APKBuilder
}

// NewArtifactUpload ...
func NewArtifactUpload(inputParser stepconf.InputParser, logger log.Logger, cmdFactory command.Factory, deliverer Deliverer, relay RelayUploader, exporter EnvExporter) *ArtifactUpload {
	a := &ArtifactUpload{
		inputParser: inputParser,
		logger:      logger,
		cmdFactory:  cmdFactory,
		deliverer:   deliverer,
		relay:       relay,
		exporter:    exporter,
	}
	a.newAPKBuilder = func(cfg bundletool.Config) APKBuilder {
		return bundletool.New(cfg, cleanhttp.DefaultClient(), a.cmdFactory, a.logger)
	}
	return a
}

// ProcessConfig ...
func (a ArtifactUpload) ProcessConfig() (Config, error) {
	var input Input
	if err := a.inputParser.Parse(&input); err != nil {
		return Config{}, err
	}
	stepconf.Print(input)

	if input.BuildFilePath == "" {
		return Config{}, errors.New("BUILD_FILE_PATH is required")
	}

	kind := artifact.KindOf(input.BuildFilePath)

	relay := input.UploadToDiawi == "yes"
	if relay && kind != artifact.IPA {
		a.logger.Warnf("Diawi upload is only used for .ipa files, %s will be sent to Slack directly", filepath.Base(input.BuildFilePath))
		relay = false
	}
	if relay && input.DiawiToken == "" {
		return Config{}, errors.New("DIAWI_TOKEN is required to upload .ipa files to Diawi")
	}

	extract := input.ExtractUniversalAPK == "yes" && kind == artifact.AAB

	args, err := shellquote.Split(input.BundletoolArgs)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse bundletool arguments: %s", err)
	}

	return Config{
		SlackToken:          string(input.SlackToken),
		ChannelID:           input.ChannelID,
		ArtifactPath:        input.BuildFilePath,
		DisplayName:         input.Name,
		Message:             input.Message,
		IncludeCommitInfo:   input.IncludeCommitInfo == "yes",
		RelayToDiawi:        relay,
		DiawiToken:          string(input.DiawiToken),
		DiawiComment:        input.DiawiComment,
		RelayLinkOnly:       relay && input.RelayLinkOnly == "yes",
		ExtractUniversalAPK: extract,
		Bundletool: bundletool.Config{
			WorkDir:   input.WorkDir,
			Version:   input.BundletoolVersion,
			JavaPath:  input.JavaPath,
			ExtraArgs: args,
		},
		ExportOutputs: input.ExportOutputs == "yes",
		VerboseLog:    input.VerboseLog == "yes",
		DeployDir:     input.DeployDir,
	}, nil
}

// Run ...
func (a ArtifactUpload) Run(cfg Config) (Result, error) {
	result := Result{bundlePath: cfg.ArtifactPath}
	message := cfg.Message

	if cfg.RelayToDiawi {
		a.logger.Println()
		a.logger.Infof("Upload to Diawi:")

		relayed, err := a.relay.Upload(cfg.DiawiToken, cfg.ArtifactPath, cfg.DiawiComment)
		if err != nil {
			return Result{}, fmt.Errorf("failed to upload to diawi: %w", err)
		}
		a.logger.Donef("Install link: %s", relayed.Link)
		result.Relay = &relayed
		message = withInstallLink(message, relayed)

		if cfg.RelayLinkOnly {
			a.logger.Println()
			a.logger.Infof("Send install link to Slack:")
			if err := a.deliverer.PostMessage(cfg.SlackToken, cfg.ChannelID, message); err != nil {
				return Result{}, err
			}
			a.logger.Donef("Install link sent")
			return result, nil
		}
	}

	a.logger.Println()
	a.logger.Infof("Upload to Slack:")

	file, err := a.deliver(slack.RequestConfig{
		ChannelID:     cfg.ChannelID,
		Token:         cfg.SlackToken,
		ArtifactPath:  cfg.ArtifactPath,
		DisplayName:   cfg.DisplayName,
		Message:       message,
		IncludeCommit: cfg.IncludeCommitInfo,
	})
	if err != nil {
		return Result{}, err
	}
	result.Files = append(result.Files, file)

	if !cfg.ExtractUniversalAPK {
		return result, nil
	}

	a.logger.Println()
	a.logger.Infof("Extract universal APK:")

	apkPath, err := a.newAPKBuilder(cfg.Bundletool).BuildUniversalAPK(cfg.ArtifactPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract APK: %w", err)
	}
	result.UniversalAPKPath = apkPath
	a.logger.Donef("Universal APK: %s", apkPath)

	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = strings.TrimSuffix(filepath.Base(cfg.ArtifactPath), filepath.Ext(cfg.ArtifactPath))
	}

	file, err = a.deliver(slack.RequestConfig{
		ChannelID:    cfg.ChannelID,
		Token:        cfg.SlackToken,
		ArtifactPath: apkPath,
		DisplayName:  displayName,
		Message:      extractedAPKMessage,
	})
	if err != nil {
		return Result{}, err
	}
	result.Files = append(result.Files, file)

	return result, nil
}

// Export ...
func (a ArtifactUpload) Export(result Result, deployDir string) error {
	a.logger.Println()
	a.logger.Infof("Export outputs:")
	a.logger.Println()

	universalAPKPath := result.UniversalAPKPath
	if universalAPKPath != "" && deployDir != "" {
		exported, err := a.exportAPK(universalAPKPath, result.bundlePath, deployDir)
		if err != nil {
			return err
		}
		universalAPKPath = exported
	}

	var outputs [][2]string
	if len(result.Files) > 0 {
		last := result.Files[len(result.Files)-1]
		outputs = append(outputs, [2]string{slackFileIDEnvKey, last.ID}, [2]string{slackFileURLEnvKey, last.URLPrivate})
	}
	if result.Relay != nil {
		outputs = append(outputs, [2]string{diawiLinkEnvKey, result.Relay.Link}, [2]string{diawiQRCodeEnvKey, result.Relay.QRCode})
	}
	outputs = append(outputs, [2]string{universalAPKPathEnvKey, universalAPKPath})

	for _, output := range outputs {
		key, value := output[0], output[1]
		if value == "" {
			continue
		}
		if err := a.exporter.ExportEnvironment(key, value); err != nil {
			return fmt.Errorf("failed to export environment variable: %s", key)
		}
		a.logger.Printf("  Env    [ $%s = %s ]", key, value)
	}

	return nil
}

func (a ArtifactUpload) deliver(reqCfg slack.RequestConfig) (slack.File, error) {
	req, err := slack.NewUploadRequest(reqCfg)
	if err != nil {
		return slack.File{}, err
	}
	return a.deliverer.Deliver(req)
}

func (a ArtifactUpload) exportAPK(apkPath, bundlePath, deployDir string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(bundlePath), filepath.Ext(bundlePath)) + "-universal.apk"
	apk := gradle.Artifact{Path: apkPath, Name: name}

	exists, err := pathutil.IsPathExists(filepath.Join(deployDir, apk.Name))
	if err != nil {
		return "", fmt.Errorf("failed to check path, error: %v", err)
	}
	if exists {
		timestamp := time.Now().Format("20060102150405")
		ext := filepath.Ext(apk.Name)
		apk.Name = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(apk.Name, ext), timestamp, ext)
	}

	a.logger.Printf("  Export [ %s => $BITRISE_DEPLOY_DIR/%s ]", filepath.Base(apk.Path), apk.Name)
	if err := apk.Export(deployDir); err != nil {
		return "", fmt.Errorf("failed to export artifact: %v", err)
	}
	return filepath.Join(deployDir, apk.Name), nil
}

func withInstallLink(message string, relayed diawi.Result) string {
	link := fmt.Sprintf("*Install link:* %s\n*QR code:* %s", relayed.Link, relayed.QRCode)
	if message == "" {
		return link
	}
	return message + "\n" + link
}
