package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

// EmulatorConfig holds the settings of the emulator gateway.
type EmulatorConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

const resourceNotFound = "ResourceNotFoundException"

type emulator struct {
	base   *url.URL
	token  string
	client *http.Client
}

// NewEmulator returns a Gateway talking to an aletsch emulator server.
func NewEmulator(cfg EmulatorConfig) (Gateway, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse emulator url")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &emulator{
		base:   base,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (g *emulator) Name() string {
	return "emulator"
}

func (g *emulator) CreateContainer(ctx context.Context, name string) error {
	op := "create vault " + name
	res, err := g.do(ctx, op, ErrObjectNotFound, http.MethodPut, nil, nil, "vaults", name)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (g *emulator) DeleteContainer(ctx context.Context, name string) error {
	op := "delete vault " + name
	res, err := g.do(ctx, op, ErrObjectNotFound, http.MethodDelete, nil, nil, "vaults", name)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (g *emulator) UploadObject(ctx context.Context, container, filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", errors.Wrap(err, "could not open file")
	}
	defer f.Close()

	op := "upload " + filename
	res, err := g.do(ctx, op, ErrObjectNotFound, http.MethodPost, f, http.Header{
		"Content-Type":          {"application/octet-stream"},
		"X-Archive-Description": {filename},
	}, "vaults", container, "archives")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var payload struct {
		ArchiveID string `json:"archive_id"`
	}
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", unavailable(op, errors.Wrap(err, "could not decode response"))
	}
	return payload.ArchiveID, nil
}

func (g *emulator) DeleteObject(ctx context.Context, container, archiveID string) error {
	op := "delete archive " + archiveID
	res, err := g.do(ctx, op, ErrObjectNotFound, http.MethodDelete, nil, nil, "vaults", container, "archives", archiveID)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (g *emulator) SubmitInventoryJob(ctx context.Context, container string) (string, error) {
	return g.initiate(ctx, container, map[string]string{"type": inventoryRetrieval})
}

func (g *emulator) SubmitRetrievalJob(ctx context.Context, container, archiveID string) (string, error) {
	return g.initiate(ctx, container, map[string]string{"type": archiveRetrieval, "archive_id": archiveID})
}

func (g *emulator) initiate(ctx context.Context, container string, params map[string]string) (string, error) {
	op := "initiate " + params["type"]

	body, err := json.Marshal(params)
	if err != nil {
		return "", errors.Wrap(err, "could not encode job parameters")
	}

	res, err := g.do(ctx, op, ErrObjectNotFound, http.MethodPost, bytes.NewReader(body), http.Header{
		"Content-Type": {"application/json"},
	}, "vaults", container, "jobs")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", unavailable(op, errors.Wrap(err, "could not decode response"))
	}
	return payload.JobID, nil
}

func (g *emulator) GetJobStatus(ctx context.Context, container, jobID string) (model.StatusCode, error) {
	op := "describe job " + jobID
	res, err := g.do(ctx, op, ErrJobNotFound, http.MethodGet, nil, nil, "vaults", container, "jobs", jobID)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var payload struct {
		StatusCode string `json:"StatusCode"`
	}
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", unavailable(op, errors.Wrap(err, "could not decode response"))
	}

	status, err := model.ParseStatusCode(payload.StatusCode)
	if err != nil {
		return "", rejected(op, err)
	}
	return status, nil
}

func (g *emulator) GetJobOutput(ctx context.Context, container, jobID string) (*JobOutput, error) {
	op := "job output " + jobID
	res, err := g.do(ctx, op, ErrJobNotFound, http.MethodGet, nil, nil, "vaults", container, "jobs", jobID, "output")
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		return &JobOutput{Body: res.Body}, nil
	}

	defer res.Body.Close()
	var inventory Inventory
	if err = json.NewDecoder(res.Body).Decode(&inventory); err != nil {
		return nil, unavailable(op, errors.Wrap(err, "could not decode inventory"))
	}
	return &JobOutput{Inventory: &inventory}, nil
}

// do performs the request and maps failures to the gateway error taxonomy.
// Only a 404 carrying a ResourceNotFoundException is reported as notfound.
// The caller must close the response body when err is nil.
func (g *emulator) do(ctx context.Context, op string, notfound error, method string, body io.Reader, header http.Header, segments ...string) (*http.Response, error) {
	u := g.base.JoinPath(append([]string{"v1"}, segments...)...)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("X-Auth-Token", g.token)

	res, err := g.client.Do(req)
	if err != nil {
		return nil, unavailable(op, err)
	}
	if res.StatusCode < http.StatusBadRequest {
		return res, nil
	}
	defer res.Body.Close()

	var payload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	json.NewDecoder(res.Body).Decode(&payload) //nolint:errcheck
	cause := fmt.Errorf("[%d] %s", res.StatusCode, payload.Message)

	switch {
	case res.StatusCode == http.StatusNotFound && payload.Type == resourceNotFound:
		return nil, rejected(op, errors.Wrap(notfound, cause.Error()))
	case res.StatusCode == http.StatusNotFound,
		res.StatusCode == http.StatusUnauthorized,
		res.StatusCode == http.StatusForbidden,
		res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode >= http.StatusInternalServerError:
		return nil, unavailable(op, cause)
	default:
		return nil, rejected(op, cause)
	}
}
