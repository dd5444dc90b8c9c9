package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/dcrodman/showdown/internal/core/data"
)

const (
	TeamCowboys = "cowboys"
	TeamAliens  = "aliens"
)

var teams = [...]string{TeamCowboys, TeamAliens}

// Outcome is the result of a finished match.
type Outcome struct {
	WinningTeam string
}

// ComputeOutcome picks the winner uniformly at random. Nothing about the
// match itself is taken into account.
func ComputeOutcome(rng *rand.Rand) Outcome {
	var n int
	if rng != nil {
		n = rng.Intn(len(teams))
	} else {
		n = rand.Intn(len(teams))
	}
	return Outcome{WinningTeam: teams[n]}
}

func (o Outcome) String() string {
	return TeamName(o.WinningTeam) + " win"
}

// TeamName is the display name of a team, e.g. "Cowboys" for "cowboys".
func TeamName(team string) string {
	return cases.Title(language.English).String(team)
}

// SessionIDSource supplies the id of the session being reported on.
type SessionIDSource interface {
	CurrentSessionID() (string, error)
}

type resultRequest struct {
	WinningTeam   string `json:"winningTeam"`
	GameSessionID string `json:"gameSessionId"`
}

// Reporter delivers the match outcome to the results API. Whatever happens to
// the request, its completion starts the shutdown handshake exactly once.
type Reporter struct {
	Logger   *logrus.Logger
	Client   *http.Client
	URL      string
	Password string
	Timeout  time.Duration
	Sessions SessionIDSource
	Shutdown Shutdowner
	// DB records every report when set.
	DB   *gorm.DB
	Rand *rand.Rand

	reported atomic.Bool
	finished sync.Once
}

// ReportMatch computes an outcome and reports it.
func (r *Reporter) ReportMatch() {
	r.Report(ComputeOutcome(r.Rand))
}

// Report posts o to the results API without blocking. Only the first call
// sends anything.
func (r *Reporter) Report(o Outcome) {
	if !r.reported.CompareAndSwap(false, true) {
		r.Logger.Warn("[RESULTS] match already reported")
		return
	}
	r.Logger.Infof("[RESULTS] match over: %s", o)

	sessionID, err := r.Sessions.CurrentSessionID()
	if err != nil {
		r.Logger.Errorf("[RESULTS] unable to determine game session: %v", err)
		r.finish("no game session to report on")
		return
	}

	body, err := json.Marshal(resultRequest{WinningTeam: o.WinningTeam, GameSessionID: sessionID})
	if err != nil {
		r.Logger.Errorf("[RESULTS] failed to encode match result: %v", err)
		r.finish("unable to encode match result")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		cancel()
		r.Logger.Errorf("[RESULTS] failed to build results request: %v", err)
		r.finish("unable to build results request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.Password)

	go func() {
		defer cancel()
		r.deliver(req, sessionID, o)
	}()
}

func (r *Reporter) deliver(req *http.Request, sessionID string, o Outcome) {
	result := &data.MatchResult{
		GameSessionID: sessionID,
		WinningTeam:   o.WinningTeam,
		ReportedAt:    time.Now(),
	}

	resp, err := r.client().Do(req)
	if err != nil {
		r.Logger.Errorf("[RESULTS] failed to deliver match result: %v", err)
		result.Error = err.Error()
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		result.StatusCode = resp.StatusCode
		result.Delivered = resp.StatusCode >= 200 && resp.StatusCode < 300
		if result.Delivered {
			r.Logger.Infof("[RESULTS] reported %s for game session %s", o.WinningTeam, sessionID)
		} else {
			result.Error = fmt.Sprintf("results API answered %s", resp.Status)
			r.Logger.Errorf("[RESULTS] %s", result.Error)
		}
	}

	r.record(result)
	r.finish("match complete")
}

func (r *Reporter) record(result *data.MatchResult) {
	if r.DB == nil {
		return
	}
	if err := data.CreateMatchResult(r.DB, result); err != nil {
		r.Logger.Warnf("[RESULTS] failed to record match result: %v", err)
	}
}

func (r *Reporter) finish(reason string) {
	r.finished.Do(func() { r.Shutdown.Shutdown(reason) })
}

func (r *Reporter) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *Reporter) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 30 * time.Second
}
