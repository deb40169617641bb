package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"comb/internal/artifact"
	"comb/internal/bootstrap"
	"comb/internal/config"
	"comb/internal/node"
	"comb/internal/pullback"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Open Workspace
	ctx, err := bootstrap.Open(cfg.RootMetaDir(), artifact.Classes(), logger)
	if err != nil {
		log.Fatalf("Failed to open workspace: %v", err)
	}

	// 3. Seed a sample project on first run
	if ctx.Graph.Len() == 1 {
		fmt.Printf("🌱 Seeding sample project in %s...\n", cfg.Project.Root)
		if err := seedSampleProject(ctx); err != nil {
			log.Fatalf("Failed to seed sample project: %v", err)
		}
		ctx, err = bootstrap.Open(cfg.RootMetaDir(), artifact.Classes(), logger)
		if err != nil {
			log.Fatalf("Failed to reopen workspace: %v", err)
		}
	}
	fmt.Printf("✅ Workspace holds %d artifacts\n", ctx.Graph.Len()-1)

	// 4. Materialize the key/value files
	ages, cities, err := findPairFiles(ctx)
	if err != nil {
		log.Fatalf("Failed to materialize files: %v", err)
	}

	// 5. Pullback join on the point keys
	fmt.Println("🔗 Joining on point keys...")
	pairKey := func(child any) (any, error) {
		return child.(artifact.Pair).Key, nil
	}
	table, err := pullback.New(logger).Join(ages, cities, pairKey, pairKey)
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	rows, err := table.Children()
	if err != nil {
		log.Fatalf("Failed to read join result: %v", err)
	}
	for _, row := range rows {
		fmt.Printf("  %v\n", row)
	}
	fmt.Printf("✨ Done: %d rows of arity %d\n", len(rows), table.Arity())
}

// seedSampleProject persists one project with an int and a string
// collection, each holding a single file.
func seedSampleProject(ctx *bootstrap.Context) error {
	f := ctx.Factory
	created := time.Now().UTC()

	project := f.NewDetached(uuid.Nil, artifact.KeyValProject(),
		artifact.ProjectMeta{Name: "keys and vals"}, ctx.Root())
	ints := f.NewDetached(uuid.Nil, artifact.KeyIntCollection(), artifact.CollectionMeta{
		FolderName:  "ints",
		Title:       "Ages",
		Description: "ages by person",
		CreatedAt:   created,
		CreatedBy:   "comb",
	}, project)
	strs := f.NewDetached(uuid.Nil, artifact.KeyStrCollection(), artifact.CollectionMeta{
		FolderName:  "strings",
		Title:       "Cities",
		Description: "cities by person",
		CreatedAt:   created,
		CreatedBy:   "comb",
	}, project)

	ages := f.NewDetached(uuid.Nil, artifact.KeyIntFile(),
		artifact.FileMeta{Filename: "ages.csv"}, ints)
	ages.ReplaceChildren([]any{
		artifact.Pair{Key: "alice", Value: 31},
		artifact.Pair{Key: "bob", Value: 27},
		artifact.Pair{Key: "carol", Value: 45},
	})
	cities := f.NewDetached(uuid.Nil, artifact.KeyStrFile(),
		artifact.FileMeta{Filename: "cities.csv"}, strs)
	cities.ReplaceChildren([]any{
		artifact.Pair{Key: "alice", Value: "lisbon"},
		artifact.Pair{Key: "carol", Value: "oslo"},
		artifact.Pair{Key: "dave", Value: "quito"},
	})

	ints.ReplaceChildren([]any{ages})
	strs.ReplaceChildren([]any{cities})
	project.ReplaceChildren([]any{ints, strs})

	return project.Save(true)
}

// findPairFiles returns the first int file and the first string file in the
// workspace.
func findPairFiles(ctx *bootstrap.Context) (*node.Node, *node.Node, error) {
	var ints, strs *node.Node
	for _, id := range ctx.Graph.IDs() {
		if id == uuid.Nil {
			continue
		}
		n, err := ctx.Factory.Create(id)
		if err != nil {
			return nil, nil, err
		}
		switch n.Class().ID {
		case artifact.KeyIntFileID:
			if ints == nil {
				ints = n
			}
		case artifact.KeyStrFileID:
			if strs == nil {
				strs = n
			}
		}
	}
	if ints == nil || strs == nil {
		return nil, nil, fmt.Errorf("workspace has no joinable key/value files")
	}
	return ints, strs, nil
}
