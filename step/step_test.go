package step

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/bitrise-io/go-steputils/stepconf"
	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/env"
	"github.com/bitrise-io/go-utils/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/bundletool"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/diawi"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/slack"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/step/mocks"
)

type testDeps struct {
	deliverer  *mocks.MockDeliverer
	relay      *mocks.MockRelayUploader
	apkBuilder *mocks.MockAPKBuilder
	exporter   *mocks.MockEnvExporter
}

func createStep() (*ArtifactUpload, testDeps) {
	deps := testDeps{
		deliverer:  new(mocks.MockDeliverer),
		relay:      new(mocks.MockRelayUploader),
		apkBuilder: new(mocks.MockAPKBuilder),
		exporter:   new(mocks.MockEnvExporter),
	}
	envRepository := env.NewRepository()
	step := NewArtifactUpload(
		stepconf.NewInputParser(envRepository),
		log.NewLogger(),
		command.NewFactory(envRepository),
		deps.deliverer,
		deps.relay,
		deps.exporter,
	)
	step.newAPKBuilder = func(bundletool.Config) APKBuilder {
		return deps.apkBuilder
	}
	return step, deps
}

func uploadRequest(t *testing.T, cfg slack.RequestConfig) slack.UploadRequest {
	req, err := slack.NewUploadRequest(cfg)
	require.NoError(t, err)
	return req
}

func setInputs(t *testing.T, buildFilePath string, overrides map[string]string) {
	inputs := map[string]string{
		"SLACK_TOKEN":           "xoxb-token",
		"CHANNEL_ID":            "C42",
		"BUILD_FILE_PATH":       buildFilePath,
		"NAME":                  "",
		"MESSAGE":               "New build",
		"INCLUDE_COMMIT_INFO":   "no",
		"UPLOAD_TO_DIAWI":       "no",
		"DIAWI_TOKEN":           "",
		"DIAWI_COMMENT":         "",
		"RELAY_LINK_ONLY":       "no",
		"EXTRACT_UNIVERSAL_APK": "no",
		"BUNDLETOOL_VERSION":    "",
		"BUNDLETOOL_ARGS":       "",
		"JAVA_PATH":             "",
		"WORK_DIR":              "",
		"EXPORT_OUTPUTS":        "no",
		"VERBOSE_LOG":           "no",
		"BITRISE_DEPLOY_DIR":    "",
	}
	for key, value := range overrides {
		inputs[key] = value
	}
	for key, value := range inputs {
		t.Setenv(key, value)
	}
}

func touch(t *testing.T, name string) string {
	pth := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(pth, []byte(name), 0600))
	return pth
}

func Test_GivenIPAWithDiawiEnabled_WhenProcessingConfig_ThenRelayIsConfigured(t *testing.T) {
	// Given
	step, _ := createStep()
	pth := touch(t, "Runner.ipa")
	setInputs(t, pth, map[string]string{
		"UPLOAD_TO_DIAWI":     "yes",
		"DIAWI_TOKEN":         "diawi-token",
		"RELAY_LINK_ONLY":     "yes",
		"INCLUDE_COMMIT_INFO": "yes",
		"NAME":                "nightly-build",
	})

	// When
	cfg, err := step.ProcessConfig()

	// Then
	require.NoError(t, err)
	assert.Equal(t, "xoxb-token", cfg.SlackToken)
	assert.Equal(t, "C42", cfg.ChannelID)
	assert.Equal(t, pth, cfg.ArtifactPath)
	assert.Equal(t, "nightly-build", cfg.DisplayName)
	assert.True(t, cfg.IncludeCommitInfo)
	assert.True(t, cfg.RelayToDiawi)
	assert.True(t, cfg.RelayLinkOnly)
	assert.Equal(t, "diawi-token", cfg.DiawiToken)
	assert.False(t, cfg.ExtractUniversalAPK)
}

func Test_GivenIPAWithoutDiawiToken_WhenProcessingConfig_ThenConfigError(t *testing.T) {
	// Given
	step, _ := createStep()
	setInputs(t, touch(t, "Runner.ipa"), map[string]string{"UPLOAD_TO_DIAWI": "yes"})

	// When
	_, err := step.ProcessConfig()

	// Then
	assert.EqualError(t, err, "DIAWI_TOKEN is required to upload .ipa files to Diawi")
}

func Test_GivenNonIPAWithDiawiEnabled_WhenProcessingConfig_ThenRelayIsSkipped(t *testing.T) {
	// Given
	step, _ := createStep()
	setInputs(t, touch(t, "app-release.apk"), map[string]string{"UPLOAD_TO_DIAWI": "yes", "RELAY_LINK_ONLY": "yes"})

	// When
	cfg, err := step.ProcessConfig()

	// Then
	require.NoError(t, err)
	assert.False(t, cfg.RelayToDiawi)
	assert.False(t, cfg.RelayLinkOnly)
}

func Test_GivenAABWithExtraction_WhenProcessingConfig_ThenBundletoolIsConfigured(t *testing.T) {
	// Given
	step, _ := createStep()
	setInputs(t, touch(t, "app-release.aab"), map[string]string{
		"EXTRACT_UNIVERSAL_APK": "yes",
		"BUNDLETOOL_VERSION":    "1.15.6",
		"BUNDLETOOL_ARGS":       `--ks=release.jks --ks-key-alias="my key"`,
		"WORK_DIR":              "/tmp/work",
	})

	// When
	cfg, err := step.ProcessConfig()

	// Then
	require.NoError(t, err)
	assert.True(t, cfg.ExtractUniversalAPK)
	assert.Equal(t, bundletool.Config{
		WorkDir:   "/tmp/work",
		Version:   "1.15.6",
		ExtraArgs: []string{"--ks=release.jks", "--ks-key-alias=my key"},
	}, cfg.Bundletool)
}

func Test_GivenMissingRequiredInputs_WhenProcessingConfig_ThenConfigError(t *testing.T) {
	for _, key := range []string{"SLACK_TOKEN", "CHANNEL_ID", "BUILD_FILE_PATH"} {
		t.Run(key, func(t *testing.T) {
			step, _ := createStep()
			setInputs(t, touch(t, "app.apk"), map[string]string{key: ""})

			_, err := step.ProcessConfig()

			assert.Error(t, err)
		})
	}
}

func Test_GivenAPK_WhenRunning_ThenArtifactIsDelivered(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{
		SlackToken:        "xoxb-token",
		ChannelID:         "C42",
		ArtifactPath:      "/out/app.apk",
		DisplayName:       "nightly-build",
		Message:           "New build",
		IncludeCommitInfo: true,
	}
	want := uploadRequest(t, slack.RequestConfig{
		ChannelID:     "C42",
		Token:         "xoxb-token",
		ArtifactPath:  "/out/app.apk",
		DisplayName:   "nightly-build",
		Message:       "New build",
		IncludeCommit: true,
	})
	file := slack.File{ID: "F1", URLPrivate: "https://files.slack.com/F1"}
	deps.deliverer.On("Deliver", want).Return(file, nil)

	// When
	result, err := step.Run(cfg)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []slack.File{file}, result.Files)
	assert.Nil(t, result.Relay)
	deps.deliverer.AssertExpectations(t)
	deps.relay.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	deps.apkBuilder.AssertNotCalled(t, "BuildUniversalAPK", mock.Anything)
}

func Test_GivenIPAWithRelay_WhenRunning_ThenInstallLinkIsAnnounced(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{
		SlackToken:   "xoxb-token",
		ChannelID:    "C42",
		ArtifactPath: "/out/Runner.ipa",
		Message:      "iOS build",
		RelayToDiawi: true,
		DiawiToken:   "diawi-token",
	}
	relayed := diawi.Result{Link: "https://relay/x", QRCode: "qr-ref"}
	deps.relay.On("Upload", "diawi-token", "/out/Runner.ipa", "").Return(relayed, nil)
	want := uploadRequest(t, slack.RequestConfig{
		ChannelID:    "C42",
		Token:        "xoxb-token",
		ArtifactPath: "/out/Runner.ipa",
		Message:      "iOS build\n*Install link:* https://relay/x\n*QR code:* qr-ref",
	})
	deps.deliverer.On("Deliver", want).Return(slack.File{ID: "F2"}, nil)

	// When
	result, err := step.Run(cfg)

	// Then
	require.NoError(t, err)
	assert.Equal(t, &relayed, result.Relay)
	assert.Equal(t, []slack.File{{ID: "F2"}}, result.Files)
	deps.relay.AssertExpectations(t)
	deps.deliverer.AssertExpectations(t)
}

func Test_GivenRelayLinkOnly_WhenRunning_ThenMessageIsPostedWithoutUpload(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{
		SlackToken:    "xoxb-token",
		ChannelID:     "C42",
		ArtifactPath:  "/out/Runner.ipa",
		RelayToDiawi:  true,
		DiawiToken:    "diawi-token",
		DiawiComment:  "nightly",
		RelayLinkOnly: true,
	}
	deps.relay.On("Upload", "diawi-token", "/out/Runner.ipa", "nightly").Return(diawi.Result{Link: "https://relay/x", QRCode: "qr-ref"}, nil)
	deps.deliverer.On("PostMessage", "xoxb-token", "C42", "*Install link:* https://relay/x\n*QR code:* qr-ref").Return(nil)

	// When
	result, err := step.Run(cfg)

	// Then
	require.NoError(t, err)
	assert.Empty(t, result.Files)
	deps.deliverer.AssertExpectations(t)
	deps.deliverer.AssertNotCalled(t, "Deliver", mock.Anything)
}

func Test_GivenRelayFails_WhenRunning_ThenNothingIsSentToSlack(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{SlackToken: "xoxb-token", ChannelID: "C42", ArtifactPath: "/out/Runner.ipa", RelayToDiawi: true, DiawiToken: "diawi-token"}
	deps.relay.On("Upload", "diawi-token", "/out/Runner.ipa", "").Return(diawi.Result{}, diawi.ErrTimeout)

	// When
	_, err := step.Run(cfg)

	// Then
	assert.ErrorIs(t, err, diawi.ErrTimeout)
	deps.deliverer.AssertNotCalled(t, "Deliver", mock.Anything)
	deps.deliverer.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything)
}

func Test_GivenAABWithExtraction_WhenRunning_ThenBundleAndAPKAreDelivered(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{
		SlackToken:          "xoxb-token",
		ChannelID:           "C42",
		ArtifactPath:        "/out/app-release.aab",
		Message:             "Android build",
		IncludeCommitInfo:   true,
		ExtractUniversalAPK: true,
	}
	bundleReq := uploadRequest(t, slack.RequestConfig{
		ChannelID:     "C42",
		Token:         "xoxb-token",
		ArtifactPath:  "/out/app-release.aab",
		Message:       "Android build",
		IncludeCommit: true,
	})
	apkReq := uploadRequest(t, slack.RequestConfig{
		ChannelID:    "C42",
		Token:        "xoxb-token",
		ArtifactPath: "/work/output_apks/universal/universal.apk",
		DisplayName:  "app-release",
		Message:      "*Extracted apk:*",
	})
	deps.deliverer.On("Deliver", bundleReq).Return(slack.File{ID: "F-aab"}, nil).Once()
	deps.apkBuilder.On("BuildUniversalAPK", "/out/app-release.aab").Return("/work/output_apks/universal/universal.apk", nil)
	deps.deliverer.On("Deliver", apkReq).Return(slack.File{ID: "F-apk"}, nil).Once()

	// When
	result, err := step.Run(cfg)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []slack.File{{ID: "F-aab"}, {ID: "F-apk"}}, result.Files)
	assert.Equal(t, "/work/output_apks/universal/universal.apk", result.UniversalAPKPath)
	deps.deliverer.AssertExpectations(t)
	deps.apkBuilder.AssertExpectations(t)
}

func Test_GivenExtractionFails_WhenRunning_ThenErrorAfterBundleDelivery(t *testing.T) {
	// Given
	step, deps := createStep()
	cfg := Config{SlackToken: "xoxb-token", ChannelID: "C42", ArtifactPath: "/out/app-release.aab", ExtractUniversalAPK: true}
	deps.deliverer.On("Deliver", mock.Anything).Return(slack.File{ID: "F-aab"}, nil).Once()
	deps.apkBuilder.On("BuildUniversalAPK", "/out/app-release.aab").Return("", bundletool.ErrJavaNotFound)

	// When
	_, err := step.Run(cfg)

	// Then
	assert.ErrorIs(t, err, bundletool.ErrJavaNotFound)
	deps.deliverer.AssertNumberOfCalls(t, "Deliver", 1)
}

func Test_GivenDeliveryFails_WhenRunning_ThenErrorIsReturned(t *testing.T) {
	step, deps := createStep()
	cfg := Config{SlackToken: "xoxb-token", ChannelID: "C42", ArtifactPath: "/out/app-release.aab", ExtractUniversalAPK: true}
	deps.deliverer.On("Deliver", mock.Anything).Return(slack.File{}, errors.New("failed to complete upload: invalid_auth"))

	_, err := step.Run(cfg)

	assert.EqualError(t, err, "failed to complete upload: invalid_auth")
	deps.apkBuilder.AssertNotCalled(t, "BuildUniversalAPK", mock.Anything)
}

func Test_GivenResult_WhenExporting_ThenOutputsAreExported(t *testing.T) {
	// Given
	step, deps := createStep()
	result := Result{
		Files: []slack.File{{ID: "F1", URLPrivate: "https://files.slack.com/F1"}, {ID: "F2", URLPrivate: "https://files.slack.com/F2"}},
		Relay: &diawi.Result{Link: "https://relay/x", QRCode: "qr-ref"},
	}
	deps.exporter.On("ExportEnvironment", "SLACK_FILE_ID", "F2").Return(nil)
	deps.exporter.On("ExportEnvironment", "SLACK_FILE_URL", "https://files.slack.com/F2").Return(nil)
	deps.exporter.On("ExportEnvironment", "DIAWI_INSTALL_LINK", "https://relay/x").Return(nil)
	deps.exporter.On("ExportEnvironment", "DIAWI_QR_CODE", "qr-ref").Return(nil)

	// When
	err := step.Export(result, "")

	// Then
	require.NoError(t, err)
	deps.exporter.AssertExpectations(t)
	deps.exporter.AssertNumberOfCalls(t, "ExportEnvironment", 4)
}

func Test_GivenExportFails_WhenExporting_ThenError(t *testing.T) {
	step, deps := createStep()
	deps.exporter.On("ExportEnvironment", mock.Anything, mock.Anything).Return(errors.New("envman not found"))

	err := step.Export(Result{Files: []slack.File{{ID: "F1"}}}, "")

	assert.EqualError(t, err, "failed to export environment variable: SLACK_FILE_ID")
}

func Test_GivenUniversalAPK_WhenExporting_ThenAPKIsCopiedToDeployDir(t *testing.T) {
	if _, err := exec.LookPath("rsync"); err != nil {
		t.Skip("artifact export needs rsync")
	}

	// Given
	step, deps := createStep()
	deployDir := t.TempDir()
	apkPath := touch(t, "universal.apk")
	result := Result{UniversalAPKPath: apkPath, bundlePath: "/out/app-release.aab"}
	exported := filepath.Join(deployDir, "app-release-universal.apk")
	deps.exporter.On("ExportEnvironment", "BITRISE_UNIVERSAL_APK_PATH", exported).Return(nil)

	// When
	err := step.Export(result, deployDir)

	// Then
	require.NoError(t, err)
	assert.FileExists(t, exported)
	deps.exporter.AssertExpectations(t)
}

func Test_GivenAPKAlreadyInDeployDir_WhenExporting_ThenTimestampedCopyIsExported(t *testing.T) {
	if _, err := exec.LookPath("rsync"); err != nil {
		t.Skip("artifact export needs rsync")
	}

	// Given
	step, deps := createStep()
	deployDir := t.TempDir()
	existing := filepath.Join(deployDir, "app-release-universal.apk")
	require.NoError(t, os.WriteFile(existing, []byte("previous build"), 0644))
	apkPath := touch(t, "universal.apk")
	result := Result{UniversalAPKPath: apkPath, bundlePath: "/out/app-release.aab"}

	timestamped := regexp.MustCompile(`^app-release-universal-\d{14}\.apk$`)
	var exported string
	deps.exporter.On("ExportEnvironment", "BITRISE_UNIVERSAL_APK_PATH", mock.MatchedBy(func(pth string) bool {
		return filepath.Dir(pth) == deployDir && timestamped.MatchString(filepath.Base(pth))
	})).Run(func(args mock.Arguments) {
		exported = args.String(1)
	}).Return(nil)

	// When
	err := step.Export(result, deployDir)

	// Then
	require.NoError(t, err)
	assert.FileExists(t, exported)
	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "previous build", string(content))
	deps.exporter.AssertExpectations(t)
}
