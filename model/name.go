package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Extension is the file suffix of persisted artifacts.
const Extension = ".model"

const nameTimeLayout = "20060102150405"

// ErrInvalidName is returned for file names that do not follow the artifact
// naming scheme.
var ErrInvalidName = errors.New("invalid model artifact name")

var namePattern = regexp.MustCompile(`^(\d{14})S(\d+)L([^C]+)C(.+)\.model$`)

// FormatName renders the artifact name
//
//	{yyyyMMddHHmmss}S{timeoutSeconds}L{validationLogLoss}C{crossValidationLogLoss}.model
//
// with the timestamp in UTC and both losses rounded half to even to six
// decimals. Losses use the shortest representation that round-trips,
// switching to exponent form ("1E-05") below 1e-4, which keeps names
// compatible with existing artifact directories.
func FormatName(md Metadata) string {
	return md.CreatedAt.UTC().Format(nameTimeLayout) +
		"S" + strconv.Itoa(md.TrainingTimeoutSeconds) +
		"L" + formatLoss(md.ValidationLogLoss) +
		"C" + formatLoss(md.CrossValidationLogLoss) +
		Extension
}

// RoundLoss rounds v half to even at six decimals.
func RoundLoss(v float64) float64 {
	return math.RoundToEven(v*1e6) / 1e6
}

// formatLoss is only exercised with log losses, which are bounded by
// -ln(1e-15) and never need a positive exponent.
func formatLoss(v float64) string {
	return strconv.FormatFloat(RoundLoss(v), 'G', -1, 64)
}

// ParseName recovers the metadata encoded in an artifact name.
func ParseName(name string) (Metadata, error) {
	var md Metadata
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return md, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	created, err := time.ParseInLocation(nameTimeLayout, m[1], time.UTC)
	if err != nil {
		return md, fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	timeout, err := strconv.Atoi(m[2])
	if err != nil {
		return md, fmt.Errorf("%w: %q: timeout: %v", ErrInvalidName, name, err)
	}
	validation, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return md, fmt.Errorf("%w: %q: validation loss: %v", ErrInvalidName, name, err)
	}
	cross, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return md, fmt.Errorf("%w: %q: cross loss: %v", ErrInvalidName, name, err)
	}

	md.CreatedAt = created
	md.TrainingTimeoutSeconds = timeout
	md.ValidationLogLoss = validation
	md.CrossValidationLogLoss = cross
	return md, nil
}
