package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "autograde API",
		Version:     "v1",
		Description: "Submission scheduling, automatic grading and grading status tracking",
		Endpoints: []endpointInfo{
			{"/api/v1/exercises", []string{"POST"}, "Create an exercise (teacher)"},
			{"/api/v1/exercises/{eid}", []string{"GET"}, "Exercise detail"},
			{"/api/v1/exercises/{eid}/grader", []string{"PUT"}, "Switch between TEACHER and AUTO grading (teacher)"},
			{"/api/v1/exercises/{eid}/submissions", []string{"GET", "POST"}, "Own submissions; POST returns once stored (student)"},
			{"/api/v1/exercises/{eid}/submissions/latest", []string{"GET"}, "Latest submission without waiting, 204 if none"},
			{"/api/v1/exercises/{eid}/submissions/latest/await", []string{"GET"}, "Latest submission after in-flight grading settles"},
			{"/api/v1/exercises/{eid}/submissions/latest/autograded", []string{"GET"}, "Poll until graded, 504 when grading is still running"},
			{"/api/v1/exercises/{eid}/anonymous/autoassess", []string{"POST"}, "Grade a solution synchronously without an account"},
			{"/api/v1/exercises/{eid}/anonymous", []string{"GET"}, "Retained anonymous submissions (teacher)"},
			{"/api/v1/submissions/{sid}", []string{"GET"}, "Submission detail (teacher)"},
			{"/api/v1/submissions/{sid}/autoassess/retry", []string{"POST"}, "Regrade; ?wait=true blocks until done (teacher)"},
			{"/api/v1/submissions/{sid}/grade", []string{"POST"}, "Manual grade (teacher)"},
			{"/api/v1/submissions/{sid}/feedback", []string{"POST"}, "Manual feedback (teacher)"},
			{"/api/v1/submissions/{sid}/activities", []string{"GET"}, "Teacher activity of a submission"},
			{"/api/v1/submissions/{sid}/activities/{aid}/feedback", []string{"PUT"}, "Edit or clear feedback (teacher)"},
			{"/api/v1/executors", []string{"GET", "POST"}, "Grading executors (admin)"},
			{"/api/v1/executors/{xid}/drain", []string{"PUT"}, "Stop routing new work to an executor (admin)"},
			{"/api/v1/executors/{xid}", []string{"DELETE"}, "Remove an executor; ?force=true ignores load (admin)"},
			{"/api/v1/auto-exercises/{aid}/executors/{xid}", []string{"PUT"}, "Allow an executor to grade an auto exercise (admin)"},
			{"/api/v1/admin/observer", []string{"GET"}, "In-flight grading handles (admin)"},
			{"/api/v1/admin/scheduler", []string{"GET"}, "Scheduler queue stats (admin)"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
