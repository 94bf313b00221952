package main

import (
	"encoding/json"
	"net/http"

	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type regionState struct {
	ID                 regioncache.RegionID `json:"id"`
	State              string               `json:"state"`
	LastEntryEndOffset uint32               `json:"lastEntryEndOffset"`
	NumReaders         uint32               `json:"numReaders"`
	HasBuffer          bool                 `json:"hasBuffer"`
}

type regionsResponse struct {
	Statistics regioncache.RegionManagerStatistics `json:"statistics"`
	NumEntries int                                 `json:"numEntries"`
	Regions    []regionState                       `json:"regions"`
}

// newRouter creates the HTTP handlers for metrics, health checking and
// inspecting the state of all regions.
func newRouter(regionManager *regioncache.RegionManager, index *entryIndex, errorLogger util.ErrorLogger) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.HandleFunc("/regions", func(w http.ResponseWriter, r *http.Request) {
		response := regionsResponse{
			Statistics: regionManager.GetStatistics(),
			NumEntries: index.getNumEntries(),
		}
		for i := uint32(0); i < regionManager.GetNumRegions(); i++ {
			region := regionManager.GetRegion(regioncache.RegionID(i))
			response.Regions = append(response.Regions, regionState{
				ID:                 region.GetID(),
				State:              region.GetState().String(),
				LastEntryEndOffset: region.GetLastEntryEndOffset(),
				NumReaders:         region.GetNumReaders(),
				HasBuffer:          region.HasBuffer(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(&response); err != nil {
			errorLogger.Log(util.StatusWrap(err, "Failed to encode region state"))
		}
	}).Methods(http.MethodGet)
	return router
}
