package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/transfer/model"
)

func openDB(fs *flag.FlagSet, args []string) *shopdb.DB {
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/shopkeep.sqlite)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "shopkeep.sqlite")
	}
	db, err := shopdb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

func playersCmd(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	db := openDB(fs, args)
	defer db.Close()

	ps, err := db.ListPlayers(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, p := range ps {
		printJSON(struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			LastSeen string `json:"last_seen"`
		}{p.ID.String(), p.Name, p.LastSeen.UTC().Format(time.RFC3339)})
	}
}

func shopsCmd(args []string) {
	fs := flag.NewFlagSet("shops", flag.ExitOnError)
	owner := fs.String("owner", "", "owner name or uuid (required)")
	db := openDB(fs, args)
	defer db.Close()

	ctx := context.Background()
	id, err := resolveOwner(ctx, db, *owner)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	shops, err := db.ListOwnedAssets(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, s := range shops {
		printJSON(shopRow(s))
	}
}

func transfersCmd(args []string) {
	fs := flag.NewFlagSet("transfers", flag.ExitOnError)
	limit := fs.Int("limit", 20, "result limit")
	db := openDB(fs, args)
	defer db.Close()

	rows, err := db.ListTransfers(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// seedFile is the yaml layout accepted by `admin seed -file`.
type seedFile struct {
	Players []struct {
		Name  string `yaml:"name"`
		ID    string `yaml:"id,omitempty"`
		Shops []struct {
			World     string `yaml:"world"`
			Pos       [3]int `yaml:"pos"`
			Item      string `yaml:"item"`
			Unlimited bool   `yaml:"unlimited,omitempty"`
		} `yaml:"shops"`
	} `yaml:"players"`
}

func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "seed yaml path (required)")
	db := openDB(fs, args)
	defer db.Close()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	players, shops, err := seed(context.Background(), db, *file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d player(s), %d shop(s)\n", players, shops)
}

func seed(ctx context.Context, db *shopdb.DB, path string) (players, shops int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for _, p := range sf.Players {
		id := model.OfflineIdentity(p.Name)
		if strings.TrimSpace(p.ID) != "" {
			if id, err = model.ParseIdentity(p.ID); err != nil {
				return players, shops, fmt.Errorf("player %q: %w", p.Name, err)
			}
		}
		if err := db.UpsertPlayer(ctx, shopdb.Player{ID: id, Name: p.Name}); err != nil {
			return players, shops, err
		}
		players++
		for _, s := range p.Shops {
			a := &model.Asset{Owner: id, World: s.World, X: s.Pos[0], Y: s.Pos[1], Z: s.Pos[2], Item: s.Item, Unlimited: s.Unlimited}
			if err := db.CreateShop(ctx, a); err != nil {
				return players, shops, err
			}
			shops++
		}
	}
	return players, shops, nil
}

func resolveOwner(ctx context.Context, db *shopdb.DB, owner string) (model.Identity, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return model.Identity{}, fmt.Errorf("missing -owner")
	}
	if id, err := model.ParseIdentity(owner); err == nil {
		return id, nil
	}
	p, err := db.LookupPlayer(ctx, owner)
	if err != nil {
		return model.Identity{}, fmt.Errorf("owner %q: %w", owner, err)
	}
	return p.ID, nil
}

type shopJSON struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner"`
	World     string `json:"world"`
	Pos       [3]int `json:"pos"`
	Item      string `json:"item"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

func shopRow(a *model.Asset) shopJSON {
	return shopJSON{ID: a.ID, Owner: a.Owner.String(), World: a.World, Pos: [3]int{a.X, a.Y, a.Z}, Item: a.Item, Unlimited: a.Unlimited}
}
