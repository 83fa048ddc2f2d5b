// Package lokarria speaks the MRDS/Lokarria HTTP interface: pose
// localization, differential-drive speed commands and laser echoes.
package lokarria

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	localizationPath      = "/lokarria/localization"
	differentialDrivePath = "/lokarria/differentialdrive"
	laserEchoesPath       = "/lokarria/laser/echoes"
)

// Client is a thin HTTP client for one simulator instance.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets addr ("host:port"). A zero timeout falls back to
// one second, short enough not to stall a control tick for long.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: timeout},
	}
}

type quaternion struct {
	W float64 `json:"W"`
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type position struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type localizationResponse struct {
	Pose struct {
		Orientation quaternion `json:"Orientation"`
		Position    position   `json:"Position"`
	} `json:"Pose"`
	Timestamp int64 `json:"Timestamp"`
}

// PoseSample is one localization reading with the planar heading
// already extracted from the orientation quaternion.
type PoseSample struct {
	X       float64
	Y       float64
	Heading float64
	At      time.Time
}

// Localization fetches the current pose estimate.
func (c *Client) Localization(ctx context.Context) (PoseSample, error) {
	var resp localizationResponse
	if err := c.getJSON(ctx, localizationPath, &resp); err != nil {
		return PoseSample{}, err
	}
	return PoseSample{
		X:       resp.Pose.Position.X,
		Y:       resp.Pose.Position.Y,
		Heading: headingFromQuaternion(resp.Pose.Orientation),
		At:      time.Now(),
	}, nil
}

// SetSpeeds posts a differential-drive command. The simulator answers
// 204 No Content on success.
func (c *Client) SetSpeeds(ctx context.Context, linear, angular float64) error {
	body, err := json.Marshal(map[string]float64{
		"TargetLinearSpeed":  linear,
		"TargetAngularSpeed": angular,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+differentialDrivePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post differentialdrive: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("differentialdrive returned status %d", resp.StatusCode)
	}
	return nil
}

type echoesResponse struct {
	Echoes    []float64 `json:"Echoes"`
	Timestamp int64     `json:"Timestamp"`
}

// MinEchoDistance returns the closest laser echo in meters. An empty
// echo array reports +Inf, i.e. nothing in range.
func (c *Client) MinEchoDistance(ctx context.Context) (float64, error) {
	var resp echoesResponse
	if err := c.getJSON(ctx, laserEchoesPath, &resp); err != nil {
		return 0, err
	}
	min := math.Inf(1)
	for _, d := range resp.Echoes {
		if d > 0 && d < min {
			min = d
		}
	}
	return min, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// headingFromQuaternion rotates the unit X vector by q and takes the
// planar angle of the result, giving the robot's heading in radians.
func headingFromQuaternion(q quaternion) float64 {
	vx := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	vy := 2 * (q.X*q.Y + q.W*q.Z)
	return math.Atan2(vy, vx)
}
