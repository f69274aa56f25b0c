package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tkrajina/gpxgo/gpx"
)

// lidarSubdirectories is the fixed per-region directory contract.
var lidarSubdirectories = []string{
	"DTM", "DSM", "CHM", "Hillshade", "HillshadeRgb",
	"Slope", "Aspect", "TPI", "LRM", "SVF", "ColorRelief",
	"cropped",
	filepath.Join("png_outputs", "matplotlib"),
}

// RegionStore owns the on-disk region layout and the region lifecycle.
// Regions are fully isolated; all metadata.txt edits are read-modify-write
// under a per-region mutex keyed by slug.
type RegionStore struct {
	outputDir string
	inputDir  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

/*
NewRegionStore creates a region store over the given output and input roots.
Directories are created lazily per region.
*/
func NewRegionStore(outputDir, inputDir string) *RegionStore {
	return &RegionStore{
		outputDir: outputDir,
		inputDir:  inputDir,
		locks:     make(map[string]*sync.Mutex),
	}
}

/*
regionLock returns the mutex for a region slug, creating it on first use.
*/
func (s *RegionStore) regionLock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[slug]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[slug] = lock
	}
	return lock
}

/*
RegionDir returns the output directory of a region.
*/
func (s *RegionStore) RegionDir(slug string) string {
	return filepath.Join(s.outputDir, slug)
}

/*
LidarDir returns the lidar product directory of a region.
*/
func (s *RegionStore) LidarDir(slug string) string {
	return filepath.Join(s.outputDir, slug, "lidar")
}

/*
InputDir returns the raw input directory of a region.
*/
func (s *RegionStore) InputDir(slug string) string {
	return filepath.Join(s.inputDir, slug, "lidar")
}

/*
Sentinel2Dir returns the Sentinel-2 band directory of a region.
*/
func (s *RegionStore) Sentinel2Dir(slug string) string {
	return filepath.Join(s.inputDir, slug, "sentinel2")
}

/*
metadataPath returns the metadata.txt location of a region.
*/
func (s *RegionStore) metadataPath(slug string) string {
	return filepath.Join(s.outputDir, slug, "metadata.txt")
}

/*
EnsureLayout creates the full region directory tree (idempotent).
*/
func (s *RegionStore) EnsureLayout(slug string) error {
	if err := validateRegionName(slug); err != nil {
		return err
	}
	lidarDir := s.LidarDir(slug)
	for _, sub := range lidarSubdirectories {
		if err := os.MkdirAll(filepath.Join(lidarDir, sub), 0o755); err != nil {
			return fmt.Errorf("error [%w] at os.MkdirAll(), dir = [%s]", err, sub)
		}
	}
	if err := os.MkdirAll(s.InputDir(slug), 0o755); err != nil {
		return fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}
	return nil
}

/*
RegisterDownload copies a cached raw elevation file into the region tree
(hardlink semantics are deliberately avoided: deleting the region must not
touch the cache blob and vice versa) and stamps metadata.txt. Returns the
region-local file path.
*/
func (s *RegionStore) RegisterDownload(slug, cachedFile string, meta RegionMetadata) (string, error) {
	lock := s.regionLock(slug)
	lock.Lock()
	defer lock.Unlock()

	destPath := filepath.Join(s.LidarDir(slug), "DTM", slug+"_elevation"+filepath.Ext(cachedFile))
	return s.registerArtifactLocked(slug, cachedFile, destPath, meta)
}

/*
RegisterImagery copies a downloaded imagery composite into the region's
sentinel2 input directory and stamps metadata.txt. Imagery never enters the
DTM tree.
*/
func (s *RegionStore) RegisterImagery(slug, cachedFile string, meta RegionMetadata) (string, error) {
	lock := s.regionLock(slug)
	lock.Lock()
	defer lock.Unlock()

	destPath := filepath.Join(s.Sentinel2Dir(slug), slug+"_sentinel2_composite"+filepath.Ext(cachedFile))
	return s.registerArtifactLocked(slug, cachedFile, destPath, meta)
}

/*
RegisterRaw copies a non-elevation, non-imagery artifact (point cloud,
instructions file, placeholder) into the region's raw input directory under
its original name and stamps metadata.txt.
*/
func (s *RegionStore) RegisterRaw(slug, cachedFile string, meta RegionMetadata) (string, error) {
	lock := s.regionLock(slug)
	lock.Lock()
	defer lock.Unlock()

	destPath := filepath.Join(s.InputDir(slug), filepath.Base(cachedFile))
	return s.registerArtifactLocked(slug, cachedFile, destPath, meta)
}

/*
registerArtifactLocked performs the shared registration steps: layout
creation, copy into the region tree, metadata stamp and the center waypoint.
Caller must hold the region mutex.
*/
func (s *RegionStore) registerArtifactLocked(slug, cachedFile, destPath string, meta RegionMetadata) (string, error) {
	if err := s.EnsureLayout(slug); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}
	if err := copyFile(cachedFile, destPath); err != nil {
		return "", fmt.Errorf("error [%w] copying download into region tree", err)
	}

	relPath, err := filepath.Rel(s.outputDir, destPath)
	if err != nil {
		relPath = destPath
	}
	meta.FilePath = relPath

	if err := s.writeMetadataLocked(slug, meta); err != nil {
		return "", err
	}

	// waypoint for field navigation to the acquisition center
	if meta.CenterLat != nil && meta.CenterLng != nil {
		if err := s.writeRegionGPX(slug, *meta.CenterLat, *meta.CenterLng); err != nil {
			slog.Warn("error writing region waypoint file", "error", err, "region", slug)
		}
	}

	return destPath, nil
}

/*
WriteMetadata stamps or updates metadata.txt under the region mutex.
*/
func (s *RegionStore) WriteMetadata(slug string, meta RegionMetadata) error {
	lock := s.regionLock(slug)
	lock.Lock()
	defer lock.Unlock()
	if err := s.EnsureLayout(slug); err != nil {
		return err
	}
	return s.writeMetadataLocked(slug, meta)
}

/*
writeMetadataLocked performs the read-modify-write of metadata.txt. When the
existing file carries an elevation API preservation marker the write is a
no-op; otherwise richer bounds/CRS already recorded are merged in, never
destroyed. Caller must hold the region mutex.
*/
func (s *RegionStore) writeMetadataLocked(slug string, meta RegionMetadata) error {
	path := s.metadataPath(slug)

	existing, err := os.ReadFile(path)
	if err == nil {
		if hasPreservationMarker(existing) {
			slog.Debug("metadata.txt carries elevation API marker, keeping authoritative file", "region", slug)
			return nil
		}
		if parsed, perr := parseRegionMetadata(existing); perr == nil {
			meta = mergeRegionMetadata(parsed, meta)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error [%w] at os.ReadFile()", err)
	}

	if meta.Name == "" {
		meta.Name = slug
	}
	if err := os.WriteFile(path, meta.Encode(), 0o644); err != nil {
		return fmt.Errorf("error [%w] at os.WriteFile()", err)
	}
	return nil
}

/*
ReadMetadata parses the metadata.txt of a region.
*/
func (s *RegionStore) ReadMetadata(slug string) (RegionMetadata, error) {
	content, err := os.ReadFile(s.metadataPath(slug))
	if err != nil {
		return RegionMetadata{}, fmt.Errorf("error [%w] at os.ReadFile()", err)
	}
	return parseRegionMetadata(content)
}

/*
writeRegionGPX writes a single-waypoint GPX file with the region center so
GPS devices can navigate to the acquisition site.
*/
func (s *RegionStore) writeRegionGPX(slug string, lat, lng float64) error {
	document := &gpx.GPX{
		Creator:     progName,
		Description: "acquisition center waypoint",
	}
	document.Waypoints = append(document.Waypoints, gpx.GPXPoint{
		Point: gpx.Point{Latitude: lat, Longitude: lng},
		Name:  slug,
	})

	xmlBytes, err := document.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("error [%w] at document.ToXml()", err)
	}
	path := filepath.Join(s.RegionDir(slug), "region.gpx")
	if err := os.WriteFile(path, xmlBytes, 0o644); err != nil {
		return fmt.Errorf("error [%w] at os.WriteFile()", err)
	}
	return nil
}

/*
CroppedLAZPath probes the quality-mode artifact of a region: a cleaned point
cloud under cropped/ (or lidar/cropped/). When present it substitutes the
raw input and all derivative filenames gain a "_clean" suffix.
*/
func (s *RegionStore) CroppedLAZPath(slug string) (string, bool) {
	candidates := []string{
		filepath.Join(s.RegionDir(slug), "cropped", slug+"_cropped.las"),
		filepath.Join(s.LidarDir(slug), "cropped", slug+"_cropped.las"),
	}
	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

/*
ListRegions enumerates regions from the input tree (LAZ files and
coordinate-pattern folders) and from output metadata.txt files. LAZ files
are never opened during listing: center coordinates stay nil and are filled
on explicit selection (deferred analysis). With processedOnly set only
regions with both metadata.txt and a populated lidar/ subtree are returned.
*/
func (s *RegionStore) ListRegions(sourceFilter string, processedOnly bool) ([]Region, error) {
	regions := make(map[string]Region)

	// input tree: LAZ files and coordinate-pattern folders
	_ = filepath.Walk(s.inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if lat, lng, ok := parseCoordinateSlug(name); ok {
				if _, seen := regions[name]; !seen {
					latCopy, lngCopy := lat, lng
					regions[name] = Region{
						Name:       name,
						CenterLat:  &latCopy,
						CenterLng:  &lngCopy,
						SourceType: SourceTypeCoordinate,
						CreatedAt:  info.ModTime(),
					}
				}
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".laz" || ext == ".las" {
			slug := strings.TrimSuffix(name, filepath.Ext(name))
			if _, seen := regions[slug]; !seen {
				// deferred LAZ analysis: centers stay nil until selection
				regions[slug] = Region{
					Name:       slug,
					SourceType: SourceTypeInputLAZ,
					CreatedAt:  info.ModTime(),
				}
			}
		}
		return nil
	})

	// output tree: one region per metadata.txt
	entries, err := os.ReadDir(s.outputDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error [%w] at os.ReadDir()", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		meta, err := s.ReadMetadata(slug)
		if err != nil {
			continue
		}
		region := Region{
			Name:        slug,
			CenterLat:   meta.CenterLat,
			CenterLng:   meta.CenterLng,
			SourceType:  meta.Source,
			NDVIEnabled: meta.NDVIEnabled,
		}
		if bounds, ok := meta.Bounds(); ok {
			region.Bounds = &bounds
		}
		if info, err := entry.Info(); err == nil {
			region.CreatedAt = info.ModTime()
		}
		regions[slug] = region
	}

	result := make([]Region, 0, len(regions))
	for _, region := range regions {
		if sourceFilter != "" && region.SourceType != sourceFilter {
			continue
		}
		if processedOnly && !s.hasProcessedProducts(region.Name) {
			continue
		}
		result = append(result, region)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

/*
hasProcessedProducts reports whether a region has both metadata.txt and a
populated lidar/ subtree.
*/
func (s *RegionStore) hasProcessedProducts(slug string) bool {
	if !fileExists(s.metadataPath(slug)) {
		return false
	}
	populated := false
	_ = filepath.Walk(s.LidarDir(slug), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && info.Size() > 0 {
			populated = true
			return filepath.SkipAll
		}
		return nil
	})
	return populated
}

/*
DeleteRegion removes the region's input tree, output tree and any raw LAZ
files named after the slug. Cache entries are never removed by region
deletion.
*/
func (s *RegionStore) DeleteRegion(slug string) error {
	if err := validateRegionName(slug); err != nil {
		return err
	}
	lock := s.regionLock(slug)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(filepath.Join(s.inputDir, slug)); err != nil {
		return fmt.Errorf("error [%w] removing input tree", err)
	}
	if err := os.RemoveAll(filepath.Join(s.outputDir, slug)); err != nil {
		return fmt.Errorf("error [%w] removing output tree", err)
	}

	lazDir := filepath.Join(s.inputDir, "LAZ")
	for _, ext := range []string{".laz", ".las"} {
		path := filepath.Join(lazDir, slug+ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("error removing raw point cloud file", "error", err, "path", path)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(lazDir, slug+"_*"))
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			slog.Warn("error removing raw point cloud file", "error", err, "path", match)
		}
	}

	slog.Info("region deleted", "region", slug)
	return nil
}

/*
fileExists checks if a path exists and is a regular file.
*/
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

/*
metadataFromBounds builds region metadata for a coordinate acquisition.
*/
func metadataFromBounds(slug, source string, lat, lng float64, bbox BoundingBox, ndviEnabled bool) RegionMetadata {
	latCopy, lngCopy := lat, lng
	north, south, east, west := bbox.North, bbox.South, bbox.East, bbox.West
	return RegionMetadata{
		Name:        slug,
		Source:      source,
		NDVIEnabled: ndviEnabled,
		CenterLat:   &latCopy,
		CenterLng:   &lngCopy,
		NorthBound:  &north,
		SouthBound:  &south,
		EastBound:   &east,
		WestBound:   &west,
	}
}
