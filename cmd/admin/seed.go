package main

import (
	"fmt"
	"os"

	"blango/internal/seed"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSeedCmd(env func() *adminEnv) *cobra.Command {
	opts := seed.DefaultOptions()
	var (
		clean   bool
		fixture string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with demo users, posts, tags and comments",
		Long: `Generates demo content with fake text, or loads a YAML fixture with --fixture.
Generated accounts share the password "` + seed.DemoPassword + `".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e := env()
			s, err := seed.NewSeeder(e.db, opts, e.logger)
			if err != nil {
				return err
			}
			if clean {
				if err := s.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared existing blog data")
			}

			var sum seed.Summary
			if fixture != "" {
				f, err := os.Open(fixture)
				if err != nil {
					return err
				}
				defer f.Close()
				fx, err := seed.ParseFixture(f)
				if err != nil {
					return err
				}
				sum, err = s.ApplyFixture(ctx, fx)
				if err != nil {
					return err
				}
			} else {
				sum, err = s.Run(ctx)
				if err != nil {
					return err
				}
			}

			out, err := yaml.Marshal(map[string]seed.Summary{"created": sum})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Users, "users", opts.Users, "number of users to generate")
	f.IntVar(&opts.Posts, "posts", opts.Posts, "number of posts to generate")
	f.IntVar(&opts.MaxTags, "max-tags", opts.MaxTags, "maximum tags per post")
	f.IntVar(&opts.MaxComments, "max-comments", opts.MaxComments, "maximum comments per post")
	f.IntVar(&opts.MaxDays, "days", opts.MaxDays, "spread join and publish dates over this many past days")
	f.Float64Var(&opts.DraftRatio, "draft-ratio", opts.DraftRatio, "share of posts left unpublished")
	f.Int64Var(&opts.RandSeed, "seed", 0, "random seed for reproducible content (0 is random)")
	f.BoolVar(&opts.FastHash, "fast-hash", false, "hash the demo password with the minimum bcrypt cost")
	f.BoolVar(&clean, "clean", false, "delete existing blog data first")
	f.StringVar(&fixture, "fixture", "", "load this YAML fixture instead of generating content")
	return cmd
}
