package walking

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

const (
	metersPerMile = 1609.344
	// points farther than this from every node are not snapped
	defaultMaxSnapMiles = 0.25
	// snapping buckets are about this wide
	bucketMiles = 0.1
)

// NodeRecord is one row of a street graph nodes CSV
type NodeRecord struct {
	ID  int64   `csv:"node_id"`
	Lat float64 `csv:"lat"`
	Lon float64 `csv:"lon"`
}

// EdgeRecord is one row of a street graph edges CSV. Edges are walkable both ways.
type EdgeRecord struct {
	From    int64   `csv:"from_node"`
	To      int64   `csv:"to_node"`
	LengthM float64 `csv:"length_m"`
}

type edge struct {
	to    int
	miles float64
}

type bucketKey struct {
	lat, lon int
}

// Graph is an in-memory pedestrian street network. It is read-only after
// construction; every Walk call keeps its own search state.
type Graph struct {
	SpeedMPH     float64
	MaxSnapMiles float64

	coords  []utils.Coordinate
	adj     [][]edge
	ids     map[int64]int
	buckets map[bucketKey][]int
	dLat    float64
	dLon    float64
}

// NewGraph builds a graph from node and edge records. Edges with unknown
// endpoints are skipped.
func NewGraph(nodes []NodeRecord, edges []EdgeRecord, speedMPH float64) *Graph {
	g := &Graph{
		SpeedMPH:     speedMPH,
		MaxSnapMiles: defaultMaxSnapMiles,
		coords:       make([]utils.Coordinate, 0, len(nodes)),
		adj:          make([][]edge, 0, len(nodes)),
		ids:          make(map[int64]int, len(nodes)),
		buckets:      map[bucketKey][]int{},
	}
	var latSum float64
	for _, n := range nodes {
		if _, dup := g.ids[n.ID]; dup {
			continue
		}
		g.ids[n.ID] = len(g.coords)
		g.coords = append(g.coords, utils.Coordinate{Lat: n.Lat, Lon: n.Lon})
		g.adj = append(g.adj, nil)
		latSum += n.Lat
	}
	refLat := 0.0
	if len(g.coords) > 0 {
		refLat = latSum / float64(len(g.coords))
	}
	g.dLat, g.dLon = utils.MilesToDegrees(refLat, bucketMiles)
	for i, c := range g.coords {
		k := g.key(c)
		g.buckets[k] = append(g.buckets[k], i)
	}

	skipped := 0
	for _, e := range edges {
		from, ok1 := g.ids[e.From]
		to, ok2 := g.ids[e.To]
		if !ok1 || !ok2 || e.LengthM < 0 {
			skipped++
			continue
		}
		miles := e.LengthM / metersPerMile
		g.adj[from] = append(g.adj[from], edge{to: to, miles: miles})
		g.adj[to] = append(g.adj[to], edge{to: from, miles: miles})
	}
	if skipped > 0 {
		log.Warn().Int("edges", skipped).Msg("Skipped street edges with unknown nodes")
	}
	return g
}

// LoadGraphCSV reads a street graph from a nodes CSV and an edges CSV
func LoadGraphCSV(nodesPath, edgesPath string, speedMPH float64) (*Graph, error) {
	var nodes []NodeRecord
	var edges []EdgeRecord
	if err := unmarshalFile(nodesPath, &nodes); err != nil {
		return nil, fmt.Errorf("street nodes: %w", err)
	}
	if err := unmarshalFile(edgesPath, &edges); err != nil {
		return nil, fmt.Errorf("street edges: %w", err)
	}
	g := NewGraph(nodes, edges, speedMPH)
	log.Info().Int("nodes", len(g.coords)).Int("edges", len(edges)).Msg("Loaded street graph")
	return g, nil
}

func unmarshalFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.UnmarshalFile(f, out)
}

// NumNodes returns the number of nodes in the graph
func (g *Graph) NumNodes() int { return len(g.coords) }

func (g *Graph) key(c utils.Coordinate) bucketKey {
	return bucketKey{lat: int(math.Floor(c.Lat / g.dLat)), lon: int(math.Floor(c.Lon / g.dLon))}
}

// nearest returns the closest node within MaxSnapMiles of c
func (g *Graph) nearest(c utils.Coordinate) (int, float64, bool) {
	if len(g.coords) == 0 {
		return 0, 0, false
	}
	reach := int(math.Ceil(g.MaxSnapMiles/bucketMiles)) + 1
	center := g.key(c)
	best, bestMiles := -1, math.Inf(1)
	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			for _, n := range g.buckets[bucketKey{lat: center.lat + dy, lon: center.lon + dx}] {
				d := utils.HaversineMiles(c, g.coords[n])
				if d < bestMiles || (d == bestMiles && n < best) {
					best, bestMiles = n, d
				}
			}
		}
	}
	if best < 0 || bestMiles > g.MaxSnapMiles {
		return 0, 0, false
	}
	return best, bestMiles, true
}

// Walk snaps both points to the network and returns the shortest path length,
// including the straight snapping segments at each end
func (g *Graph) Walk(ctx context.Context, from, to utils.Coordinate) (Leg, error) {
	src, srcSnap, ok := g.nearest(from)
	if !ok {
		return Leg{}, fmt.Errorf("%w: %s", ErrOffNetwork, from)
	}
	dst, dstSnap, ok := g.nearest(to)
	if !ok {
		return Leg{}, fmt.Errorf("%w: %s", ErrOffNetwork, to)
	}
	miles, err := g.shortest(ctx, src, dst)
	if err != nil {
		return Leg{}, err
	}
	miles += srcSnap + dstSnap
	return Leg{Miles: miles, Minutes: MinutesFor(miles, g.SpeedMPH)}, nil
}

type queueItem struct {
	node  int
	miles float64
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].miles == pq[j].miles {
		return pq[i].node < pq[j].node
	}
	return pq[i].miles < pq[j].miles
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// shortest runs Dijkstra from src until dst is settled
func (g *Graph) shortest(ctx context.Context, src, dst int) (float64, error) {
	if src == dst {
		return 0, nil
	}
	dist := map[int]float64{src: 0}
	settled := map[int]bool{}
	pq := &priorityQueue{}
	heap.Push(pq, &queueItem{node: src})

	pops := 0
	for pq.Len() > 0 {
		pops++
		if pops%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		cur := heap.Pop(pq).(*queueItem)
		if settled[cur.node] {
			continue
		}
		settled[cur.node] = true
		if cur.node == dst {
			return cur.miles, nil
		}
		for _, e := range g.adj[cur.node] {
			if settled[e.to] {
				continue
			}
			next := cur.miles + e.miles
			if d, seen := dist[e.to]; !seen || next < d {
				dist[e.to] = next
				heap.Push(pq, &queueItem{node: e.to, miles: next})
			}
		}
	}
	return 0, ErrNoPath
}
