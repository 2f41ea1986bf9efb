package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 150
)

var (
	ingestAgent      string
	ingestNamespace  string
	ingestDepartment string
	ingestChunkSize  int
	ingestOverlap    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Chunk, embed and store text files for an agent",
	Long: `Split text or markdown files into passages, embed them and store them in a
namespace the agent may write to.

Examples:
  advisorctl ingest --agent mechanical docs/mech/*.md
  advisorctl ingest --agent industrial --department industrial enmg.txt
  advisorctl ingest catalog data/courses.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestCatalogCmd = &cobra.Command{
	Use:   "catalog <catalog.json>",
	Short: "Index every catalog section for the schedule responder",
	Long: `Turn every course section of a scraped catalog into a passage with
course_code metadata and store it in the schedule_maker namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestCatalog,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAgent, "agent", "", "agent whose namespace receives the passages (required)")
	ingestCmd.Flags().StringVar(&ingestNamespace, "namespace", "", "target namespace (default: the agent's first namespace)")
	ingestCmd.Flags().StringVar(&ingestDepartment, "department", "", "department metadata for every passage")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", defaultChunkSize, "maximum passage length in characters")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", defaultChunkOverlap, "characters shared by consecutive passages")
	_ = ingestCmd.MarkFlagRequired("agent")

	ingestCmd.AddCommand(ingestCatalogCmd)
	rootCmd.AddCommand(ingestCmd)
}

// fileDocuments chunks one file into documents with deterministic ids so
// re-ingesting a file replaces its passages.
func fileDocuments(path string, size, overlap int, department string) ([]*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	source := filepath.Base(path)
	chunks := knowledge.Chunk(string(data), size, overlap)
	docs := make([]*schema.Document, 0, len(chunks))
	for i, c := range chunks {
		meta := map[string]any{knowledge.MetaSource: source}
		if department != "" {
			meta[knowledge.MetaDepartment] = department
		}
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprintf("%s#%d", source, i),
			Content:  c,
			MetaData: meta,
		})
	}
	return docs, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	var docs []*schema.Document
	for _, path := range args {
		d, err := fileDocuments(path, ingestChunkSize, ingestOverlap, ingestDepartment)
		if err != nil {
			return err
		}
		if len(d) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping empty file %s\n", path)
			continue
		}
		docs = append(docs, d...)
	}
	if len(docs) == 0 {
		return errors.New("nothing to ingest")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []indexer.Option
	if ingestNamespace != "" {
		opts = append(opts, indexer.WithSubIndexes([]string{ingestNamespace}))
	}
	ids, err := a.Indexer(ingestAgent).Store(cmd.Context(), docs, opts...)
	if err != nil {
		return fmt.Errorf("ingest for %s: %w", ingestAgent, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d passages from %d files for %s\n", len(ids), len(args), ingestAgent)
	return nil
}

func runIngestCatalog(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewLoader(args[0]).Load(cmd.Context())
	if err != nil {
		return err
	}
	docs := cat.Documents()
	if len(docs) == 0 {
		return fmt.Errorf("catalog %s has no sections", args[0])
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ns := namespace.NamespaceFor(namespace.AgentScheduleMaker)
	ids, err := a.Indexer(namespace.AgentScheduleMaker).Store(cmd.Context(), docs, indexer.WithSubIndexes([]string{ns}))
	if err != nil {
		return fmt.Errorf("ingest catalog: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d sections from %d courses in %s\n", len(ids), cat.CourseCount(), ns)
	return nil
}
