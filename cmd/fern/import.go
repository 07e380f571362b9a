package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
)

type importOptions struct {
	projectID   string
	userID      string
	filePath    string
	sheetName   string
	entityType  string
	profilePath string
	mappings    map[string]string
}

// newImportCmd runs a CSV import in-process: the job is recorded like an API import but
// executed here instead of on the queue.
func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file into a project and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			// the operator names a local file
			cfg.UploadDir = ""

			a := newApp(cfg, logger)
			a.addDatabase(false)
			a.addKafka()
			a.addGraph()
			a.addServices(false)
			if err := a.startup.Start(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()

			ctx := cmd.Context()
			job, err := a.importer.StartImport(ctx, opts.projectID, opts.userID, req)
			if err != nil {
				return err
			}
			if err := a.pipeline.Handle(ctx, job.ID); err != nil {
				return err
			}

			report, err := a.importer.GetReport(ctx, job.ID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if report.Status != models.JobStatusCompleted {
				return fmt.Errorf("import job %s finished as %s", job.ID, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.projectID, "project", "", "Project to import into")
	cmd.Flags().StringVar(&opts.userID, "user", "fern-cli", "User recorded as the creator")
	cmd.Flags().StringVar(&opts.filePath, "file", "", "CSV file to import")
	cmd.Flags().StringVar(&opts.sheetName, "sheet", "", "Sheet name recorded in the import lineage")
	cmd.Flags().StringVar(&opts.entityType, "entity-type", "", "Entity type of the rows")
	cmd.Flags().StringVar(&opts.profilePath, "profile", "", "YAML import profile with the entity type and column mappings")
	cmd.Flags().StringToStringVar(&opts.mappings, "map", nil, "Column mapping as Column=field, repeatable")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func (o importOptions) request() (models.StartImportRequest, error) {
	req := models.StartImportRequest{
		FilePath:       o.filePath,
		SheetName:      o.sheetName,
		EntityType:     o.entityType,
		ColumnMappings: models.ColumnMappings(o.mappings),
	}

	if o.profilePath != "" {
		profile, err := importer.LoadProfileFile(o.profilePath)
		if err != nil {
			return req, err
		}
		if req.EntityType != "" && req.EntityType != profile.EntityType {
			return req, fmt.Errorf("profile %s is for %s, not %s", profile.Name, profile.EntityType, req.EntityType)
		}
		req.EntityType = profile.EntityType
		if len(req.ColumnMappings) == 0 {
			req.ColumnMappings = profile.ColumnMappings.Data
		}
	}

	if req.EntityType == "" {
		return req, errors.New("--entity-type or --profile is required")
	}
	if len(req.ColumnMappings) == 0 {
		return req, errors.New("--map or --profile is required")
	}
	return req, nil
}
