// Package passkit produces the pass binary served over the wallet pull
// protocol. The full template/signing pipeline lives with the pass
// templating service; this generator builds the data bundle the
// protocol handler hands out.
package passkit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	"github.com/kawhe-app/kawhe/internal/config"
	"github.com/kawhe-app/kawhe/internal/serial"
	"go.uber.org/fx"
)

// Generator renders the pass binary for an account.
type Generator interface {
	Generate(ctx context.Context, account accountdomain.LoyaltyAccount, store accountdomain.Store) ([]byte, error)
}

type bundleGenerator struct {
	cfg config.Config
}

func NewBundleGenerator(cfg config.Config) Generator {
	return &bundleGenerator{cfg: cfg}
}

type passDefinition struct {
	FormatVersion       int       `json:"formatVersion"`
	PassTypeIdentifier  string    `json:"passTypeIdentifier"`
	SerialNumber        string    `json:"serialNumber"`
	TeamIdentifier      string    `json:"teamIdentifier"`
	OrganizationName    string    `json:"organizationName"`
	Description         string    `json:"description"`
	AuthenticationToken string    `json:"authenticationToken"`
	Barcode             barcode   `json:"barcode"`
	StoreCard           storeCard `json:"storeCard"`
}

type barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
}

type storeCard struct {
	PrimaryFields   []passField `json:"primaryFields"`
	SecondaryFields []passField `json:"secondaryFields"`
}

type passField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (g *bundleGenerator) Generate(ctx context.Context, account accountdomain.LoyaltyAccount, store accountdomain.Store) ([]byte, error) {
	_ = ctx

	serialNumber := serial.Encode(account.StoreID, account.CustomerID)
	target := store.RewardTarget
	if target <= 0 {
		target = g.cfg.RewardTarget
	}

	definition := passDefinition{
		FormatVersion:       1,
		PassTypeIdentifier:  g.cfg.PassTypeIdentifier,
		SerialNumber:        serialNumber,
		TeamIdentifier:      g.cfg.TeamIdentifier,
		OrganizationName:    g.cfg.OrganizationName,
		Description:         store.Name + " loyalty card",
		AuthenticationToken: account.WalletAuthToken,
		Barcode: barcode{
			Format:          "PKBarcodeFormatQR",
			Message:         "LA:" + serialNumber,
			MessageEncoding: "iso-8859-1",
		},
		StoreCard: storeCard{
			PrimaryFields: []passField{
				{Key: "stamps", Label: "Stamps", Value: fmt.Sprintf("%d of %d", account.StampCount, target)},
			},
			SecondaryFields: []passField{
				{Key: "rewards", Label: "Rewards", Value: fmt.Sprintf("%d", account.RewardBalance)},
			},
		},
	}

	passJSON, err := json.Marshal(definition)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("pass.json")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(passJSON); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var Module = fx.Module("passkit",
	fx.Provide(NewBundleGenerator),
)
