package main

import (
	"net/http"
	"os"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"ella-rises/controllers"
	"ella-rises/driver"
	"ella-rises/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using environment")
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		logrus.Fatal("SESSION_SECRET is required")
	}
	csrfKey := os.Getenv("CSRF_KEY")
	if len(csrfKey) != 32 {
		logrus.Fatal("CSRF_KEY must be exactly 32 bytes")
	}

	db := driver.ConnectDB()
	defer db.Close()
	if err := driver.Migrate(db, "migrations"); err != nil {
		logrus.WithError(err).Fatal("migrations failed")
	}

	utils.InitSessionStore([]byte(sessionSecret))
	if err := utils.LoadTemplates("views/*.html"); err != nil {
		logrus.WithError(err).Fatal("template parse failed")
	}

	auth := &controllers.AuthController{}
	dashboard := &controllers.DashboardController{}
	participants := &controllers.ParticipantController{}
	events := &controllers.EventController{}
	registrations := &controllers.RegistrationController{}
	surveys := &controllers.SurveyController{}
	milestones := &controllers.MilestoneController{}
	donations := &controllers.DonationController{}
	users := &controllers.UserController{}

	r := mux.NewRouter()

	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Public pages.
	r.HandleFunc("/", auth.Landing()).Methods("GET")
	r.HandleFunc("/login", auth.LoginForm()).Methods("GET")
	r.HandleFunc("/login", auth.Login(db)).Methods("POST")
	r.HandleFunc("/logout", auth.Logout()).Methods("GET", "POST")
	r.HandleFunc("/signup", auth.SignupForm()).Methods("GET")
	r.HandleFunc("/signup", auth.Signup(db)).Methods("POST")
	r.HandleFunc("/donations/new", donations.NewForm()).Methods("GET")
	r.HandleFunc("/donations/new", donations.Create(db)).Methods("POST")

	// Any logged-in account.
	r.HandleFunc("/dashboard", controllers.RequireLogin(dashboard.Show(db))).Methods("GET")
	r.HandleFunc("/participants", controllers.RequireLogin(participants.List(db))).Methods("GET")
	r.HandleFunc("/participants/{id:[0-9]+}", controllers.RequireLogin(participants.Detail(db))).Methods("GET")
	r.HandleFunc("/events", controllers.RequireLogin(events.List(db))).Methods("GET")
	r.HandleFunc("/events/{id:[0-9]+}/register", controllers.RequireLogin(registrations.Register(db))).Methods("POST")
	r.HandleFunc("/surveys", controllers.RequireLogin(surveys.List(db))).Methods("GET")
	r.HandleFunc("/surveys/new", controllers.RequireLogin(surveys.NewForm(db))).Methods("GET")
	r.HandleFunc("/surveys/new", controllers.RequireLogin(surveys.Create(db))).Methods("POST")
	r.HandleFunc("/surveys/{id:[0-9]+}/edit", controllers.RequireLogin(surveys.EditForm(db))).Methods("GET")
	r.HandleFunc("/surveys/{id:[0-9]+}/edit", controllers.RequireLogin(surveys.Edit(db))).Methods("POST")
	r.HandleFunc("/surveys/{id:[0-9]+}/delete", controllers.RequireLogin(surveys.Delete(db))).Methods("POST")
	r.HandleFunc("/milestones", controllers.RequireLogin(milestones.List(db))).Methods("GET")
	r.HandleFunc("/milestones/new", controllers.RequireLogin(milestones.NewForm())).Methods("GET")
	r.HandleFunc("/milestones/new", controllers.RequireLogin(milestones.Create(db))).Methods("POST")
	r.HandleFunc("/milestones/{id:[0-9]+}/edit", controllers.RequireLogin(milestones.EditForm(db))).Methods("GET")
	r.HandleFunc("/milestones/{id:[0-9]+}/edit", controllers.RequireLogin(milestones.Edit(db))).Methods("POST")
	r.HandleFunc("/milestones/{id:[0-9]+}/delete", controllers.RequireLogin(milestones.Delete(db))).Methods("POST")
	r.HandleFunc("/donations", controllers.RequireLogin(donations.List(db))).Methods("GET")

	// Manager only.
	r.HandleFunc("/participants/add", controllers.RequireManager(participants.AddForm(db))).Methods("GET")
	r.HandleFunc("/participants/add", controllers.RequireManager(participants.Add(db))).Methods("POST")
	r.HandleFunc("/participants/{id:[0-9]+}/edit", controllers.RequireManager(participants.EditForm(db))).Methods("GET")
	r.HandleFunc("/participants/{id:[0-9]+}/edit", controllers.RequireManager(participants.Edit(db))).Methods("POST")
	r.HandleFunc("/participants/{id:[0-9]+}/delete", controllers.RequireManager(participants.Delete(db))).Methods("POST")
	r.HandleFunc("/events/add", controllers.RequireManager(events.AddForm())).Methods("GET")
	r.HandleFunc("/events/add", controllers.RequireManager(events.Add(db))).Methods("POST")
	r.HandleFunc("/events/{id:[0-9]+}/edit", controllers.RequireManager(events.EditForm(db))).Methods("GET")
	r.HandleFunc("/events/{id:[0-9]+}/edit", controllers.RequireManager(events.Edit(db))).Methods("POST")
	r.HandleFunc("/events/{id:[0-9]+}/delete", controllers.RequireManager(events.Delete(db))).Methods("POST")
	r.HandleFunc("/registrations/{id:[0-9]+}/checkin", controllers.RequireManager(registrations.Checkin(db))).Methods("POST")
	r.HandleFunc("/donations/add", controllers.RequireManager(donations.AddForm(db))).Methods("GET")
	r.HandleFunc("/donations/add", controllers.RequireManager(donations.Add(db))).Methods("POST")
	r.HandleFunc("/donations/{id:[0-9]+}/edit", controllers.RequireManager(donations.EditForm(db))).Methods("GET")
	r.HandleFunc("/donations/{id:[0-9]+}/edit", controllers.RequireManager(donations.Edit(db))).Methods("POST")
	r.HandleFunc("/donations/{id:[0-9]+}/delete", controllers.RequireManager(donations.Delete(db))).Methods("POST")
	r.HandleFunc("/users", controllers.RequireManager(users.List(db))).Methods("GET")
	r.HandleFunc("/users/add", controllers.RequireManager(users.AddForm())).Methods("GET")
	r.HandleFunc("/users/add", controllers.RequireManager(users.Add(db))).Methods("POST")
	r.HandleFunc("/users/{id:[0-9]+}/edit", controllers.RequireManager(users.EditForm(db))).Methods("GET")
	r.HandleFunc("/users/{id:[0-9]+}/edit", controllers.RequireManager(users.Edit(db))).Methods("POST")
	r.HandleFunc("/users/{id:[0-9]+}/delete", controllers.RequireManager(users.Delete(db))).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		utils.RenderError(w, req, http.StatusNotFound, "Page not found.")
	})

	csrfProtect := csrf.Protect([]byte(csrfKey),
		csrf.Secure(os.Getenv("CSRF_SECURE") != "false"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			utils.RenderError(w, req, http.StatusForbidden, "Invalid or missing form token. Please try again.")
		})),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	handler := controllers.RequestLogger(csrfProtect(r))
	logrus.WithField("port", port).Info("server listening")
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
