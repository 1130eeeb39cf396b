// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/explorercharts/chartdata/dataset"
)

// Default developer activity sources.
const (
	GithubURL      = "https://api.github.com"
	CoinGeckoURL   = "https://api.coingecko.com/api/v3"
	DefaultRepo    = "PIVX-Project/PIVX"
	DefaultCoinID  = "pivx"
	githubTimeFmt  = "2006-01-02T15:04:05Z"
	geckoDateFmt   = "02-01-2006"
	maxPullsPages  = 100
	requestTimeout = 30 * time.Second
)

// GithubData is the developer activity plot file. Point i is the week
// starting at WeeksAxis[i].
type GithubData struct {
	WeeksAxis    []int64 `json:"weeks_axis"`
	Commits      []int64 `json:"commits"`
	PullsOpened  []int64 `json:"pulls_opened"`
	PullsMerged  []int64 `json:"pulls_merged"`
	PullsClosed  []int64 `json:"pulls_closed"`
	Forks        []int64 `json:"forks"`
	Stars        []int64 `json:"stars"`
	Subscribers  []int64 `json:"subscribers"`
	Contributors []int64 `json:"pull_request_contributors"`
}

// CommitActivity is a week of the GitHub commit activity statistics.
type CommitActivity struct {
	Days  []int64 `json:"days"`
	Total int64   `json:"total"`
	Week  int64   `json:"week"`
}

// PullRequest holds the times of a GitHub pull request. Times are empty when
// the event did not happen.
type PullRequest struct {
	Number    int64  `json:"number"`
	CreatedAt string `json:"created_at"`
	MergedAt  string `json:"merged_at"`
	ClosedAt  string `json:"closed_at"`
}

// DeveloperData is the developer_data of a CoinGecko coin history.
type DeveloperData struct {
	Forks        int64 `json:"forks"`
	Stars        int64 `json:"stars"`
	Subscribers  int64 `json:"subscribers"`
	Contributors int64 `json:"pull_request_contributors"`
}

type coinHistory struct {
	DeveloperData DeveloperData `json:"developer_data"`
}

// GithubUpdater rebuilds the developer activity plot file from the GitHub
// statistics of a repository and the CoinGecko history of its coin.
type GithubUpdater struct {
	Client    *http.Client
	GithubURL string
	GeckoURL  string
	Repo      string
	CoinID    string
	Token     string
	File      string
	// GeckoDelay is the pause between two CoinGecko requests.
	GeckoDelay time.Duration
}

// NewGithubUpdater creates a GithubUpdater for the default repository, writing
// the plot file in dir.
func NewGithubUpdater(dir string) *GithubUpdater {
	return &GithubUpdater{
		Client:     &http.Client{Timeout: requestTimeout},
		GithubURL:  GithubURL,
		GeckoURL:   CoinGeckoURL,
		Repo:       DefaultRepo,
		CoinID:     DefaultCoinID,
		File:       filepath.Join(dir, dataset.GithubDefinition().File),
		GeckoDelay: 1500 * time.Millisecond,
	}
}

// Name satisfies the Updater interface.
func (u *GithubUpdater) Name() string {
	return "github"
}

// getJSON requests a URL and decodes the JSON response into response.
func (u *GithubUpdater) getJSON(ctx context.Context, uri string, response interface{}, github bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if github && u.Token != "" {
		req.Header.Set("Authorization", "token "+u.Token)
	}
	log.Tracef("GET %s", uri)
	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("invalid response from %s: %s", uri, resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

// WeeklyCommits fetches the commit totals of the last year by week.
func (u *GithubUpdater) WeeklyCommits(ctx context.Context) ([]CommitActivity, error) {
	var weeks []CommitActivity
	uri := fmt.Sprintf("%s/repos/%s/stats/commit_activity", u.GithubURL, u.Repo)
	if err := u.getJSON(ctx, uri, &weeks, true); err != nil {
		return nil, err
	}
	return weeks, nil
}

// Pulls fetches the pull requests, newest first, until a page starts with a
// pull request closed before since.
func (u *GithubUpdater) Pulls(ctx context.Context, since int64) ([]PullRequest, error) {
	var pulls []PullRequest
	for page := 1; page <= maxPullsPages; page++ {
		q := url.Values{}
		q.Set("state", "all")
		q.Set("sort", "created")
		q.Set("direction", "desc")
		q.Set("page", strconv.Itoa(page))
		uri := fmt.Sprintf("%s/repos/%s/pulls?%s", u.GithubURL, u.Repo, q.Encode())

		var newPage []PullRequest
		if err := u.getJSON(ctx, uri, &newPage, true); err != nil {
			return pulls, err
		}
		if len(newPage) == 0 {
			break
		}
		if closed, ok := parseGithubTime(newPage[0].ClosedAt); ok && closed < since {
			break
		}
		pulls = append(pulls, newPage...)
	}
	return pulls, nil
}

// DeveloperData fetches the CoinGecko developer data of the coin on the day
// of the unix time t.
func (u *GithubUpdater) DeveloperData(ctx context.Context, t int64) (*DeveloperData, error) {
	q := url.Values{}
	q.Set("date", time.Unix(t, 0).UTC().Format(geckoDateFmt))
	q.Set("localization", "false")
	uri := fmt.Sprintf("%s/coins/%s/history?%s", u.GeckoURL, u.CoinID, q.Encode())
	var hist coinHistory
	if err := u.getJSON(ctx, uri, &hist, false); err != nil {
		return nil, err
	}
	return &hist.DeveloperData, nil
}

func parseGithubTime(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	t, err := time.Parse(githubTimeFmt, s)
	if err != nil {
		log.Debugf("Bad GitHub time %q: %v", s, err)
		return 0, false
	}
	return t.Unix(), true
}

// AddToWeeklySum counts an event at unix time t in the latest week starting
// at or before t. Events before the first week are not counted.
func AddToWeeklySum(weeks, sums []int64, t int64) {
	i := len(weeks) - 1
	for i >= 0 && t < weeks[i] {
		i--
	}
	if i >= 0 {
		sums[i]++
	}
}

// CountPulls buckets the pull requests by week as opened, merged, and closed
// without being merged.
func CountPulls(weeks []int64, pulls []PullRequest) (opened, merged, closed []int64) {
	opened = make([]int64, len(weeks))
	merged = make([]int64, len(weeks))
	closed = make([]int64, len(weeks))
	for _, pr := range pulls {
		if t, ok := parseGithubTime(pr.CreatedAt); ok {
			AddToWeeklySum(weeks, opened, t)
		}
		if t, ok := parseGithubTime(pr.MergedAt); ok {
			AddToWeeklySum(weeks, merged, t)
			continue
		}
		if t, ok := parseGithubTime(pr.ClosedAt); ok {
			AddToWeeklySum(weeks, closed, t)
		}
	}
	return
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Update rebuilds the plot file. The number of weeks written is returned.
func (u *GithubUpdater) Update(ctx context.Context) (int, error) {
	commits, err := u.WeeklyCommits(ctx)
	if err != nil {
		return 0, fmt.Errorf("weekly commits: %w", err)
	}
	if len(commits) == 0 {
		return 0, fmt.Errorf("no commit activity for %s", u.Repo)
	}

	data := &GithubData{
		WeeksAxis: make([]int64, len(commits)),
		Commits:   make([]int64, len(commits)),
	}
	for i, c := range commits {
		data.WeeksAxis[i] = c.Week
		data.Commits[i] = c.Total
	}

	pulls, err := u.Pulls(ctx, data.WeeksAxis[0])
	if err != nil {
		// Count what was fetched.
		log.Warnf("Pull requests of %s incomplete: %v", u.Repo, err)
	}
	data.PullsOpened, data.PullsMerged, data.PullsClosed = CountPulls(data.WeeksAxis, pulls)

	for i, week := range data.WeeksAxis {
		if i > 0 {
			if err = sleepCtx(ctx, u.GeckoDelay); err != nil {
				return 0, err
			}
		}
		dev, err := u.DeveloperData(ctx, week)
		if err != nil {
			return 0, fmt.Errorf("developer data of week %d: %w", week, err)
		}
		data.Forks = append(data.Forks, dev.Forks)
		data.Stars = append(data.Stars, dev.Stars)
		data.Subscribers = append(data.Subscribers, dev.Subscribers)
		data.Contributors = append(data.Contributors, dev.Contributors)
	}

	if err = writePlotFile(u.File, data, nil); err != nil {
		return 0, err
	}
	last := time.Unix(data.WeeksAxis[len(data.WeeksAxis)-1], 0).UTC()
	log.Infof("Updated developer activity to the week of %s.", last.Format("2006-01-02"))
	return len(data.WeeksAxis), nil
}
