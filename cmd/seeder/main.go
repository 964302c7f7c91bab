package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/punchamoorthee/offerledger/internal/config"
	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

// seedFile is the YAML layout accepted by the seeder.
//
//	offers:
//	  - name: Slot1
//	    text: "<b>Spin</b> to win"
//	    button_text: Play
//	    button_url: https://example.com
type seedFile struct {
	Offers []seedOffer `yaml:"offers"`
}

type seedOffer struct {
	Name       string `yaml:"name"`
	Text       string `yaml:"text"`
	PhotoID    string `yaml:"photo_id"`
	FileID     string `yaml:"file_id"`
	ButtonText string `yaml:"button_text"`
	ButtonURL  string `yaml:"button_url"`
}

func main() {
	path := flag.String("file", "catalog.yaml", "YAML catalog to load")
	overwrite := flag.Bool("overwrite", false, "Replace offers that already exist (view counts are kept)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("unable to load configuration")
	}
	log := cfg.NewLogger()

	seed, err := readSeed(*path)
	if err != nil {
		log.WithError(err).Fatal("unable to read seed file")
	}

	ctx := context.Background()
	backend, err := store.OpenBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("unable to open store backend")
	}
	defer backend.Close()

	catalog, err := store.NewCatalogStore(ctx, backend)
	if err != nil {
		log.WithError(err).Fatal("unable to load catalog")
	}

	log.WithField("file", *path).Info("--- Seeding Catalog ---")
	created, replaced, skipped, err := apply(ctx, catalog, seed, *overwrite)
	if err != nil {
		log.WithError(err).Fatal("seeding failed")
	}
	log.WithFields(logrus.Fields{"created": created, "replaced": replaced, "skipped": skipped}).
		Info("catalog seeded")
}

func readSeed(path string) (seedFile, error) {
	var seed seedFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, o := range seed.Offers {
		if o.Name == "" {
			return seed, fmt.Errorf("offer #%d has no name", i+1)
		}
		if !domain.ValidName(o.Name) {
			return seed, fmt.Errorf("offer #%d: name %q is longer than %d bytes", i+1, o.Name, domain.MaxNameBytes)
		}
	}
	return seed, nil
}

// apply writes seed offers in file order, so the file order becomes catalog order
// for new entries.
func apply(ctx context.Context, catalog *store.CatalogStore, seed seedFile, overwrite bool) (created, replaced, skipped int, err error) {
	for _, o := range seed.Offers {
		offer := domain.Offer{
			Body:        o.Text,
			ImageRef:    o.PhotoID,
			FileRef:     o.FileID,
			ButtonLabel: o.ButtonText,
			ButtonURL:   o.ButtonURL,
		}
		err := catalog.Create(ctx, o.Name, offer)
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrOfferExists) && overwrite:
			if _, err := catalog.Update(ctx, o.Name, func(cur *domain.Offer) error {
				*cur = offer
				return nil
			}); err != nil {
				return created, replaced, skipped, fmt.Errorf("replace %q: %w", o.Name, err)
			}
			replaced++
		case errors.Is(err, store.ErrOfferExists):
			skipped++
		default:
			return created, replaced, skipped, fmt.Errorf("create %q: %w", o.Name, err)
		}
	}
	return created, replaced, skipped, nil
}
