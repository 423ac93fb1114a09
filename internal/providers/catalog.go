package providers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/providerhealth"
)

// BuildProvider constructs one named adapter, mirroring the originating
// codebase's PROVIDER_CATALOG/build_provider factory: a single place that
// knows which constructor takes a token and which doesn't, and that latches
// any construction failure into the health registry as init_failed so the
// caller can treat "provider unusable" uniformly whether it failed at
// construction time or at call time.
func BuildProvider(name Name, token string, log zerolog.Logger) (Provider, error) {
	switch name {
	case Eastmoney:
		return NewEastmoneyClient(log), nil
	case Tencent:
		return NewTencentClient(log), nil
	case Sina:
		return NewSinaClient(log), nil
	case ProAPI:
		client, err := NewProAPIClient(token, log)
		if err != nil {
			reason := fmt.Sprintf("init_failed:%s", err.Error())
			providerhealth.Global().SetDisabled(string(ProAPI), reason, time.Time{})
			return nil, fmt.Errorf("build_provider %s: %w", name, err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("build_provider: unknown provider %q", name)
	}
}

// BuildCatalog constructs every provider named in names, skipping (and
// logging) any that fail construction rather than aborting the whole
// catalog. A single bad Pro-API token must not prevent Eastmoney/Tencent/
// Sina from being usable.
func BuildCatalog(names []Name, token string, log zerolog.Logger) map[Name]Provider {
	catalog := make(map[Name]Provider, len(names))
	for _, name := range names {
		provider, err := BuildProvider(name, token, log)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(name)).Msg("provider construction failed, excluded from catalog")
			continue
		}
		catalog[name] = provider
	}
	return catalog
}
