package data

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
)

// filesDBService keeps one JSON array file per entity kind in the data folder.
type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewError(err interface{}) error {
	return svc.store(toErrorRecord(err), "errors")
}

func (svc *filesDBService) NewFramerStats(stats model.FramerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.store(stats, "framer-stats")
}

func (svc *filesDBService) NewClassifierStats(stats model.ClassifierStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.store(stats, "classifier-stats")
}

func (svc *filesDBService) NewDisplayStats(stats model.DisplayStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.store(stats, "display-stats")
}

func (svc *filesDBService) Close() error {
	return nil
}

func (svc *filesDBService) store(entity interface{}, filename string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := os.MkdirAll(svc.CfgSvc.GetDataFolder(), 0755); err != nil {
		return err
	}

	return newEntity(entity, filename, svc.CfgSvc)
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntities[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	output := entityPath(filename, cfgsvc)
	return os.WriteFile(output, data, 0644)
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityPath(filename, cfgsvc))
	if err != nil {
		// WARNING: File not found, return empty slice
		return entities, nil
	}

	err = json.Unmarshal(data, &entities)
	if err != nil {
		return nil, err
	}

	return entities, nil
}

func entityPath(filename string, cfgsvc config.IService) string {
	return fmt.Sprintf("%s/%s.json", cfgsvc.GetDataFolder(), filename)
}
