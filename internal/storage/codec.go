package storage

import (
	"encoding/json"
	"errors"

	"evovis/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp carried by records written now.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRunSummary(s model.RunSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeRunSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func EncodeRunSnapshot(s model.RunSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeRunSnapshot(data []byte) (model.RunSnapshot, error) {
	var snapshot model.RunSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.RunSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.RunSnapshot{}, err
	}
	return snapshot, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
