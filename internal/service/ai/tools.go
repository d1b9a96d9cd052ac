package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// InitWebSearch builds the web_search tool over Google Custom Search and
// DuckDuckGo. It returns nil when neither provider can be created.
func InitWebSearch(ctx context.Context, log logrus.FieldLogger) tool.InvokableTool {
	googleTool := initGoogleSearch(ctx, log)
	duckTool := initDDGSearch(ctx, log)
	if googleTool == nil && duckTool == nil {
		log.Warn("web search tool disabled: no search providers available")
		return nil
	}
	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: LegalFetchTimeout},
		quota:      newSearchQuota(LegalSearchQuota, LegalSearchQuotaWindow),
		log:        log,
	}
	return utils.NewTool(webSearchInfo(), ws.run)
}

func webSearchInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for current Danish statutes, rates and court rulings; " +
			"falls back to another provider if needed; " +
			"fetches the page when given a URL.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	quota      *searchQuota
	log        logrus.FieldLogger
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	var quotaErr error
	allowed := func(backend string) bool {
		if w.quota == nil {
			return true
		}
		wait, err := w.quota.Take(backend)
		if err != nil {
			w.log.WithError(err).WithField("retry_in", wait.Round(time.Second)).Debug("search backend skipped")
			quotaErr = fmt.Errorf("%w, retry in %s", err, wait.Round(time.Second))
			return false
		}
		return true
	}

	if looksLikeURL(query) && allowed("fetch") {
		content, err := w.fetchLegalPage(ctx, query)
		if err == nil {
			return content, nil
		}
		w.log.WithError(err).Debug("legal page fetch failed")
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil && allowed("google") {
		result, err := w.google.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		w.log.WithError(err).Warn("google search failed")
	}
	if w.duck != nil && allowed("duckduckgo") {
		result, err := w.duck.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		w.log.WithError(err).Warn("duckduckgo search failed")
	}
	if quotaErr != nil {
		return "", quotaErr
	}
	return "", errors.New("no search provider succeeded")
}

func initDDGSearch(ctx context.Context, log logrus.FieldLogger) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		log.WithError(err).Warn("duckduckgo search tool disabled")
		return nil
	}
	return duckTool
}

func initGoogleSearch(ctx context.Context, log logrus.FieldLogger) tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		log.Debug("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "da",
		Num:            5,
	})
	if err != nil {
		log.WithError(err).Warn("google search tool disabled")
		return nil
	}
	return googleTool
}
