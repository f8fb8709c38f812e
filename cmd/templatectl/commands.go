package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/puppyone-ai/puppyone-sub007/internal/compat"
	"github.com/puppyone-ai/puppyone-sub007/internal/config"
	"github.com/puppyone-ai/puppyone-sub007/internal/logging"
	"github.com/puppyone-ai/puppyone-sub007/internal/materializer"
	"github.com/puppyone-ai/puppyone-sub007/internal/partition"
	"github.com/puppyone-ai/puppyone-sub007/internal/rebuild"
	"github.com/puppyone-ai/puppyone-sub007/internal/services"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/internal/templates"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "templatectl",
		Short:         "Materialize workflow templates from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("env", "", "Path to .env file")

	rootCmd.AddCommand(newInstantiateCmd(), newCheckCompatCmd(), newPartitionCmd())
	return rootCmd
}

func newInstantiateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instantiate",
		Short: "Instantiate a template for a user and print the workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			templateID, _ := cmd.Flags().GetString("template")
			userID, _ := cmd.Flags().GetString("user")
			workspaceID, _ := cmd.Flags().GetString("workspace")
			modelsFile, _ := cmd.Flags().GetString("models")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: "console"})
			if err != nil {
				return err
			}
			defer logger.Sync()

			var available []models.Model
			if modelsFile != "" {
				if err := readJSON(modelsFile, &available); err != nil {
					return err
				}
			}

			loader := newLoader(cfg, logger)
			result, err := loader.InstantiateByID(cmd.Context(), templateID, userID, workspaceID, available)
			if err != nil {
				return fmt.Errorf("failed to instantiate %s: %w", templateID, err)
			}
			return writeJSON(cmd.OutOrStdout(), result.Workflow)
		},
	}
	cmd.Flags().String("template", "", "Template id")
	cmd.Flags().String("user", "", "User id owning the stored resources")
	cmd.Flags().String("workspace", "", "Workspace id")
	cmd.Flags().String("models", "", "JSON file listing the available models")
	cmd.MarkFlagRequired("template")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("workspace")
	return cmd
}

func newCheckCompatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-compat",
		Short: "Print the embedding compatibility verdict for a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			requiredFile, _ := cmd.Flags().GetString("required")
			modelsFile, _ := cmd.Flags().GetString("models")

			var available []models.Model
			if err := readJSON(modelsFile, &available); err != nil {
				return err
			}
			var required *models.EmbeddingModelRequirement
			if requiredFile != "" {
				required = &models.EmbeddingModelRequirement{}
				if err := readJSON(requiredFile, required); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), compat.CheckCompatibility(required, available))
		},
	}
	cmd.Flags().String("required", "", "JSON file with the template's embedding requirement")
	cmd.Flags().String("models", "", "JSON file listing the available models")
	cmd.MarkFlagRequired("models")
	return cmd
}

type partSummary struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int    `json:"size"`
}

func newPartitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition <file>",
		Short: "Show how a payload would be split into parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			size, _ := cmd.Flags().GetInt("part-size")
			verify, _ := cmd.Flags().GetBool("verify")

			if kind != string(models.ContentKindText) && kind != string(models.ContentKindStructured) {
				return fmt.Errorf("unknown kind %q: want text or structured", kind)
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			parts := partition.New(size).Partition(content, models.ContentKind(kind))
			summary := make([]partSummary, len(parts))
			for i, p := range parts {
				summary[i] = partSummary{Name: p.Name, Mime: p.Mime, Size: len(p.Bytes)}
			}

			// Text parts must reassemble byte for byte.
			if verify && kind == string(models.ContentKindText) && !bytes.Equal(partition.Join(parts), content) {
				return fmt.Errorf("reassembled parts differ from %s", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().String("kind", string(models.ContentKindText), "Content kind: text or structured")
	cmd.Flags().Int("part-size", partition.DefaultPartSize, "Upper bound for a single part in bytes")
	cmd.Flags().Bool("verify", false, "Check that text parts reassemble into the input")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env")
	return config.LoadConfig(envFile, configFile)
}

func newLoader(cfg *config.Config, logger *logging.Logger) *materializer.Loader {
	var embedder services.Embedder = services.NewDeferredEmbedder(logger)
	if cfg.Embedding.URL != "" {
		embedder = services.NewHTTPEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	}
	return materializer.NewLoader(materializer.Options{
		Source: templates.NewFSSource(cfg.Templates.Dir),
		Transfer: storage.NewClient(storage.Config{
			BaseURL:         cfg.Storage.BaseURL,
			DeploymentMode:  cfg.Storage.DeploymentMode,
			DevToken:        cfg.Storage.DevToken,
			PartConcurrency: cfg.Storage.PartConcurrency,
			Timeout:         cfg.Storage.Timeout,
		}, logger),
		Partitioner:      partition.New(cfg.Materializer.PartSize),
		Rebuilder:        rebuild.NewOrchestrator(embedder, logger),
		StorageThreshold: cfg.Materializer.StorageThreshold,
		Logger:           logger,
	})
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
