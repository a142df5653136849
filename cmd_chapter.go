package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"luminar-api/database"
	"luminar-api/logger"
	"luminar-api/services"
	"luminar-api/utils"
)

var chapterCmd = &cobra.Command{
	Use:   "chapter",
	Short: "Operator tools for chapters",
	Long: `Create, list and close chapters.

Available subcommands:
  create - Create a chapter and its clues from a YAML seed file
  list   - List chapters with their winner counts
  end    - End a chapter and publish its pack
  hash   - Print the normalized form and hash of an answer`,
}

var chapterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a chapter from a YAML seed file",
	Long: `Create a chapter and its clues from a YAML seed file.

Answers and the claim code are hashed before they are stored; the seed file
is the only place their plain text exists.`,
	RunE: runChapterCreate,
}

var chapterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chapters",
	RunE:  runChapterList,
}

var chapterEndCmd = &cobra.Command{
	Use:   "end <chapter-id>",
	Short: "End a chapter and publish its pack",
	Args:  cobra.ExactArgs(1),
	RunE:  runChapterEnd,
}

var chapterHashCmd = &cobra.Command{
	Use:   "hash <answer>",
	Short: "Print the normalized form and hash of an answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "normalized: %q\n", utils.Normalize(args[0]))
		fmt.Fprintf(out, "hash:       %s\n", utils.HashAnswer(args[0]))
		return nil
	},
}

var seedFile string

func init() {
	chapterCreateCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML seed file")
	_ = chapterCreateCmd.MarkFlagRequired("file")

	chapterCmd.AddCommand(chapterCreateCmd, chapterListCmd, chapterEndCmd, chapterHashCmd)
}

func readSeed(path string) (services.ChapterSeed, error) {
	var seed services.ChapterSeed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("failed to read seed file: %w", err)
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed, nil
}

func runChapterCreate(cmd *cobra.Command, _ []string) error {
	seed, err := readSeed(seedFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush(2 * time.Second)

	db, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return err
	}
	chapter, err := services.NewChapterService(db, nil).CreateChapter(cmd.Context(), seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Created chapter %d (%s) with %d clues\n", chapter.ID, chapter.Status, len(chapter.Clues))
	return nil
}

func runChapterList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush(2 * time.Second)

	db, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return err
	}
	chapters, err := services.NewChapterService(db, nil).ListChapters(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tENDS\tQUALIFIED\tWINNERS")
	for _, c := range chapters {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
			c.ID, c.Title, c.Status, c.EndsAt.Format(time.RFC3339), c.QualifiedCount, c.WinnersCount)
	}
	return w.Flush()
}

func runChapterEnd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid chapter id %q", args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush(2 * time.Second)

	db, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return err
	}
	store, _, err := packStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	result, err := services.NewChapterService(db, store).EndChapter(cmd.Context(), uint(id))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Chapter %d ended: %d winners, %d lamports owed\n   pack: %s\n",
		id, result.WinnersCount, result.TotalPayout, result.ChapterPackURL)
	return nil
}
