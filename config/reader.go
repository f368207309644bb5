package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// rootPath prefixes validation errors of the top level record.
const rootPath = "calibration"

// Read reads a calibration config from the given file. Environment variables in the file are
// expanded before parsing. Files ending in .yaml or .yml are YAML, everything else is JSON.
func Read(filePath string) (*Calibration, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a calibration config from the given reader. originalPath picks the format and
// anchors relative paths in the config.
func FromReader(originalPath string, r io.Reader) (*Calibration, error) {
	conf := &Calibration{ConfigFilePath: originalPath}
	if err := decode(originalPath, r, conf); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}
	if conf.DataFile != "" {
		points, err := readDataFile(conf.resolvePath(conf.DataFile))
		if err != nil {
			return nil, err
		}
		conf.Data = append(conf.Data, points...)
		// the points are inlined now
		conf.DataFile = ""
	}
	if err := conf.Validate(rootPath); err != nil {
		return nil, err
	}
	return conf, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decode(path string, r io.Reader, out interface{}) error {
	if isYAML(path) {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(out)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// readDataFile reads a list of data points. Relative image paths are made absolute against the
// directory of the data file.
func readDataFile(path string) ([]DataPoint, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read data file")
	}
	var points []DataPoint
	if err := decode(path, bytes.NewReader(buf), &points); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal data file %q", path)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	for i := range points {
		if points[i].Image != "" && !filepath.IsAbs(points[i].Image) {
			points[i].Image = filepath.Join(dir, points[i].Image)
		}
	}
	return points, nil
}

// Marshal serializes the config in the format filePath names.
func Marshal(filePath string, conf *Calibration) ([]byte, error) {
	if isYAML(filePath) {
		return yaml.Marshal(conf)
	}
	return json.MarshalIndent(conf, "", "  ")
}
