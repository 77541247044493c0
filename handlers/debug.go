package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

func Debug(repoURL, sha1ver, buildtime string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		v := mux.Vars(r)

		a := []string{
			fmt.Sprintf("url: %s %s", r.Method, r.RequestURI),
			fmt.Sprintf("ver: %s/commit/%s", repoURL, sha1ver),
			fmt.Sprintf("built on: %s", buildtime),
			fmt.Sprintf("api version called: %s", v["apiVersion"]),
		}

		servePlainText(rw, strings.Join(a, "\n"))
	})
}
