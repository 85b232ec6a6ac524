package main

import (
	"fmt"
	"os"

	"github.com/bitrise-io/go-steputils/stepconf"
	"github.com/bitrise-io/go-utils/command"
	"github.com/bitrise-io/go-utils/env"
	"github.com/bitrise-io/go-utils/log"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"

	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/diawi"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/gitcommit"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/slack"
	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/step"
)

func main() {
	envRepository := env.NewRepository()
	logger := log.NewLogger()

	if err := newRootCommand(envRepository, logger).Execute(); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func newRootCommand(envRepository env.Repository, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "slack-artifact-upload",
		Short:         "Uploads a build artifact to a Slack channel",
		Long:          "Uploads a build artifact to a Slack channel. iOS packages can be shared through a Diawi install link, Android App Bundles get a universal APK uploaded next to them.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyFlags(cmd.Flags(), envRepository); err != nil {
				return err
			}
			return run(envRepository, logger)
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func run(envRepository env.Repository, logger log.Logger) error {
	artifactUpload := newArtifactUpload(envRepository, logger)

	cfg, err := processConfig(artifactUpload, logger)
	if err != nil {
		return fmt.Errorf("process config: %s", err)
	}

	result, err := artifactUpload.Run(cfg)
	if err != nil {
		return fmt.Errorf("run: %s", err)
	}

	if !cfg.ExportOutputs {
		return nil
	}
	if err := artifactUpload.Export(result, cfg.DeployDir); err != nil {
		return fmt.Errorf("export outputs: %s", err)
	}
	return nil
}

func newArtifactUpload(envRepository env.Repository, logger log.Logger) *step.ArtifactUpload {
	cmdFactory := command.NewFactory(envRepository)

	annotator := gitcommit.NewAnnotator(gitcommit.NewReader(".", cmdFactory), logger)
	deliverer := slack.NewUploader(slack.DefaultBaseURL, cleanhttp.DefaultPooledClient(), annotator, logger)
	relay := diawi.NewRelay(diawi.NewClient(diawi.DefaultBaseURL, diawi.NewDefaultHTTPClient(), logger), logger)

	return step.NewArtifactUpload(
		stepconf.NewInputParser(envRepository),
		logger,
		cmdFactory,
		deliverer,
		relay,
		step.NewEnvmanExporter(),
	)
}

// processConfig parses the step inputs and switches debug logging on the shared logger.
func processConfig(artifactUpload *step.ArtifactUpload, logger log.Logger) (step.Config, error) {
	cfg, err := artifactUpload.ProcessConfig()
	if err != nil {
		return step.Config{}, err
	}
	logger.EnableDebugLog(cfg.VerboseLog)
	return cfg, nil
}
