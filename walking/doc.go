// Package walking estimates pedestrian legs between coordinates.
//
// Estimators compose: a street Graph is usually wrapped in WithFallback so that
// timeouts and off-network points degrade to a StraightLine estimate, and the
// result is wrapped in NewCached. ErrNoPath is never replaced by the fallback.
//
//	graph, _ := walking.LoadGraphCSV("nodes.csv", "edges.csv", 4.0)
//	est := walking.NewCached(walking.WithFallback(graph, walking.NewStraightLine(4.0, 1.3), 2*time.Second))
//	leg, err := est.Walk(ctx, home, office)
package walking
