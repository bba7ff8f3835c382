package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/testsupport/basedata"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, log.WarnLevel, ParseLogLevel("warn", log.InfoLevel))
	assert.Equal(t, log.InfoLevel, ParseLogLevel("chatty", log.InfoLevel))
}

func TestEngineOptions(t *testing.T) {
	defer func(e config.Engine) { config.EngineConfig = e }(config.EngineConfig)

	config.EngineConfig = config.DefaultEngine()
	e, err := EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngine(), e)

	config.EngineConfig.MinValidDistanceM = 5
	_, err = EngineOptions()
	assert.Error(t, err)

	config.EngineConfig = config.DefaultEngine()
	config.EngineConfig.AcceptanceThreshold = 1.5
	_, err = EngineOptions()
	assert.Error(t, err)
}

func TestLoadCatalogWithoutFile(t *testing.T) {
	defer func(f string) { config.CatalogFile = f }(config.CatalogFile)
	config.CatalogFile = ""
	_, err := LoadCatalog()
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestBuildCatalog(t *testing.T) {
	c, err := BuildCatalog([]model.TrackGeometry{basedata.SampleTrack(), basedata.FarTrack()})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}
