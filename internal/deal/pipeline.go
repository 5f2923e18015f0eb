package deal

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
	"github.com/HqOapp/hubspot-deal-analysis-extension/pkg/hubspot"
)

// Pipeline aggregates everything known about a deal into a single document.
// One run is strictly sequential; any fetch failure aborts the run with no
// partial result.
type Pipeline struct {
	fetcher *Fetcher
}

// New creates a Pipeline over the given CRM client.
func New(crm hubspot.Client) *Pipeline {
	return &Pipeline{fetcher: NewFetcher(crm)}
}

// Run fetches the deal, its contacts, companies, and engagement history, then
// renders the formatted analysis document.
func (p *Pipeline) Run(ctx context.Context, dealID string) (*model.DealData, error) {
	log := zap.L().With(zap.String("deal_id", dealID))
	log.Info("deal: starting aggregation")

	d, err := p.fetcher.Deal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	contacts, err := p.fetcher.Contacts(ctx, dealID)
	if err != nil {
		return nil, eris.Wrapf(err, "deal: fetch contacts for %s", dealID)
	}

	companies, err := p.fetcher.Companies(ctx, dealID)
	if err != nil {
		return nil, eris.Wrapf(err, "deal: fetch companies for %s", dealID)
	}

	engagements, err := p.fetcher.Engagements(ctx, dealID)
	if err != nil {
		return nil, eris.Wrapf(err, "deal: fetch engagements for %s", dealID)
	}

	urls := CollectURLs(engagements)
	doc := Render(d, contacts, companies, engagements, urls)

	dealName := d.Name
	if dealName == "" {
		dealName = unknownDeal
	}

	log.Info("deal: aggregation complete",
		zap.Int("contacts", len(contacts)),
		zap.Int("companies", len(companies)),
		zap.Int("engagements", len(engagements)),
		zap.Int("unique_urls", urls.Len()),
	)

	return &model.DealData{
		Deal:             d,
		DealName:         dealName,
		Contacts:         contacts,
		Companies:        companies,
		Engagements:      engagements,
		FormattedContent: doc,
	}, nil
}
