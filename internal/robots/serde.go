package robots

import "encoding/json"

func serializeHostState(s *hostState) (string, error) {
	p := persistedHostState{
		RawBody:     s.rawBody,
		FetchedAt:   s.fetchedAt,
		HTTPStatus:  s.httpStatus,
		IsValid:     s.isValid,
		SitemapURLs: s.sitemapURLs,
		CrawlDelay:  s.crawlDelay,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func deserializeHostState(data string) (persistedHostState, error) {
	var p persistedHostState
	err := json.Unmarshal([]byte(data), &p)
	return p, err
}
