package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bookcatalog-backend/internal/domains/book/handler"
	"bookcatalog-backend/internal/domains/book/model"
	bookService "bookcatalog-backend/internal/domains/book/service"
	"bookcatalog-backend/pkg/container"
)

type runFlags struct {
	actor string
	track bool
	async bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actor, "actor", "", "Actor UUID recorded on activities and the job")
	cmd.Flags().BoolVar(&f.track, "track", false, "Record the run as an import job")
	cmd.Flags().BoolVar(&f.async, "async", false, "Queue the run for the worker instead of running it here")
}

func (f *runFlags) actorID() (*uuid.UUID, error) {
	if f.actor == "" {
		return nil, nil
	}
	id, err := uuid.Parse(f.actor)
	if err != nil {
		return nil, fmt.Errorf("--actor must be a UUID: %w", err)
	}
	return &id, nil
}

func (f *runFlags) run(cmd *cobra.Command, c *container.Container, req bookService.RunRequest) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case f.async:
		job, err := c.ImportService.Enqueue(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(out, model.ImportJobResponse{JobID: job.ID, Status: job.Status, Total: len(req.ISBNs)})

	case f.track:
		job, result, err := c.ImportService.ExecuteTracked(ctx, req)
		if err != nil {
			return err
		}
		resp := model.ImportRunResponse{Status: result.Status(), Result: result}
		if job != nil {
			resp.JobID = &job.ID
		}
		return printJSON(out, resp)

	default:
		result, err := c.ImportService.Execute(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(out, model.ImportRunResponse{Status: result.Status(), Result: result})
	}
}

func newISBNsCmd() *cobra.Command {
	var (
		file  string
		flags runFlags
	)

	cmd := &cobra.Command{
		Use:   "isbns [ISBN...]",
		Short: "Import books by identifier",
		Example: `  importer isbns 9780140449136 0140449132
  importer isbns --file books.xlsx --track`,
		RunE: func(cmd *cobra.Command, args []string) error {
			isbns := append([]string(nil), args...)
			if file != "" {
				fromFile, err := readISBNFile(file)
				if err != nil {
					return err
				}
				isbns = append(isbns, fromFile...)
			}
			if len(isbns) == 0 {
				return fmt.Errorf("pass identifiers as arguments or with --file")
			}

			actorID, err := flags.actorID()
			if err != nil {
				return err
			}

			return withContainer(func(c *container.Container) error {
				return flags.run(cmd, c, bookService.RunRequest{
					Kind:    model.ImportKindISBNs,
					ISBNs:   isbns,
					ActorID: actorID,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV or XLSX file with identifiers in the first column")
	flags.register(cmd)
	return cmd
}

func readISBNFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return handler.ParseISBNFile(path, f)
}

func newEntityCmd() *cobra.Command {
	var (
		kind  string
		name  string
		isbns []string
		flags runFlags
	)

	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Import the books of one author or publisher",
		Long: `Import books scoped to an author or publisher. Without --isbn the
provider is asked for the entity's books.`,
		Example: `  importer entity --type author --name "Ursula K. Le Guin"
  importer entity --type publisher --name Penguin --isbn 9780140449136`,
		RunE: func(cmd *cobra.Command, args []string) error {
			importKind, err := parseImportKind(kind)
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			actorID, err := flags.actorID()
			if err != nil {
				return err
			}

			return withContainer(func(c *container.Container) error {
				return flags.run(cmd, c, bookService.RunRequest{
					Kind:       importKind,
					EntityName: name,
					ISBNs:      isbns,
					ActorID:    actorID,
				})
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", "author", "Entity type: author or publisher")
	cmd.Flags().StringVar(&name, "name", "", "Exact entity name")
	cmd.Flags().StringSliceVar(&isbns, "isbn", nil, "Identifiers to import instead of discovering them")
	flags.register(cmd)
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		kind     string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the provider for author or publisher names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *container.Container) error {
				names, err := c.ImportService.SearchEntities(cmd.Context(), model.EntityKind(kind), args[0], page, pageSize)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), names)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", "author", "Entity type: author or publisher")
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Results per page")
	return cmd
}

func newRetryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "retry-failed",
		Short: "Queue the failed identifiers of finished jobs for another run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *container.Container) error {
				queued, err := c.ImportService.RetryFailed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"queued": queued})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to requeue")
	return cmd
}

func parseImportKind(kind string) (model.ImportKind, error) {
	switch model.EntityKind(kind) {
	case model.EntityAuthor:
		return model.ImportKindAuthor, nil
	case model.EntityPublisher:
		return model.ImportKindPublisher, nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrInvalidEntityKind, kind)
}
