package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/conedex/conedex/internal/app"
	"github.com/conedex/conedex/internal/app/domain/badge"
	"github.com/conedex/conedex/internal/app/domain/quest"
	"github.com/conedex/conedex/internal/config"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the badges and quests listed in a catalog file",
		Long: `Seed reads a YAML catalog of badges and quests and creates every entry
that does not exist yet. Badges are matched by name and quests by title, so
running it twice is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := seedCatalog(cmd.Context(), rt.App(), cat)
			if err != nil {
				return err
			}
			opts.out.Success("badges: %d created, %d existing", res.BadgesCreated, res.BadgesExisting)
			opts.out.Success("quests: %d created, %d existing", res.QuestsCreated, res.QuestsExisting)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "configs/catalog.yaml", "path to the catalog file")
	return cmd
}

type seedResult struct {
	BadgesCreated  int
	BadgesExisting int
	QuestsCreated  int
	QuestsExisting int
}

func seedCatalog(ctx context.Context, application *app.Application, cat *config.Catalog) (seedResult, error) {
	var res seedResult

	existingBadges, err := application.Badges.List(ctx)
	if err != nil {
		return res, err
	}
	badgeIDs := make(map[string]string, len(existingBadges))
	byName := make(map[string]string, len(existingBadges))
	for _, b := range existingBadges {
		byName[b.Name] = b.ID
	}

	for _, entry := range cat.Badges {
		if id, ok := byName[entry.Name]; ok {
			badgeIDs[entry.Key] = id
			res.BadgesExisting++
			continue
		}
		created, err := application.Badges.Create(ctx, badge.Badge{
			Name:        entry.Name,
			Description: entry.Description,
			ImageURL:    entry.ImageURL,
			Points:      entry.Points,
			Criteria: badge.Criteria{
				Kind:      badge.CriteriaKind(entry.Criteria),
				Threshold: entry.Threshold,
				Category:  entry.Category,
			},
		})
		if err != nil {
			return res, fmt.Errorf("badge %s: %w", entry.Key, err)
		}
		badgeIDs[entry.Key] = created.ID
		res.BadgesCreated++
	}

	existingQuests, err := application.Quests.ListAll(ctx)
	if err != nil {
		return res, err
	}
	titles := make(map[string]bool, len(existingQuests))
	for _, q := range existingQuests {
		titles[q.Title] = true
	}

	for _, entry := range cat.Quests {
		if titles[entry.Title] {
			res.QuestsExisting++
			continue
		}
		objectives := make([]quest.Objective, 0, len(entry.Objectives))
		for _, o := range entry.Objectives {
			objectives = append(objectives, quest.Objective{
				Kind:     quest.ObjectiveKind(o.Kind),
				Target:   o.Target,
				Category: o.Category,
			})
		}
		if _, err := application.Quests.Create(ctx, quest.Quest{
			Title:       entry.Title,
			Description: entry.Description,
			Points:      entry.Points,
			BadgeID:     badgeIDs[entry.Badge],
			StartsAt:    entry.StartsAt,
			EndsAt:      entry.EndsAt,
			Objectives:  objectives,
			Active:      true,
		}); err != nil {
			return res, fmt.Errorf("quest %s: %w", entry.Title, err)
		}
		titles[entry.Title] = true
		res.QuestsCreated++
	}

	return res, nil
}
