package main

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tathya/pkg/files"
	"tathya/pkg/logger"
	"tathya/pkg/middleware"
	"tathya/pkg/post"
	"tathya/pkg/sessions"
	"tathya/pkg/user"
	"tathya/pkg/user/api"
)

type EnvConfig map[string]string

func init() {
	rand.Seed(time.Now().UnixNano())
}

func main() {
	var cfg EnvConfig = readDotenv()
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}

	db, err := sql.Open("pgx", "postgresql://localhost/"+cfg["POSTGRES_DB"]+"?sslmode=disable")
	if err != nil {
		log.Printf("Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("unable to reach PostgreSQL: %v", err)
	}

	redisConn, err := redis.DialURL(cfg["REDIS_ADDR"])
	if err != nil {
		log.Fatalf("main: can't connect to Redis")
	}

	mongoCtx, mongoCtxCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer mongoCtxCancel()
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg["MONGODB_URI"]))
	if err != nil {
		log.Fatalln("main: can't connect to MongoDB,", err)
	}
	if err := mongoClient.Ping(mongoCtx, nil); err != nil {
		log.Fatalln("main: unable to connect to MongoDB,", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(mongoCtx); err != nil {
			log.Fatalln("main: failed disconnecting from MongoDB, ", err)
		}
	}()

	uploadsDir := cfg["UPLOADS_DIR"]
	if uploadsDir == "" {
		uploadsDir = "uploads"
	}
	storage, err := files.NewStorage(uploadsDir)
	if err != nil {
		log.Fatalln("main: can't set up attachment storage,", err)
	}

	postsDB := mongoClient.Database("tathya").Collection("posts")
	postsRepo := post.NewPostRepo(postsDB)
	usersRepo := user.NewUserRepo(db)
	sessionManager := sessions.NewSessionManager(cfg["SECRET_KEY"], redisConn)
	postHandler := post.NewPostHandler(postsRepo, storage)
	userHandler := api.NewUserHanler(usersRepo, sessionManager)

	r := mux.NewRouter()

	// Generate fake content to have better UI experience
	// seed(usersRepo, postsRepo)

	apiRouter := r.PathPrefix("/api").Subrouter()

	// Posts
	apiRouter.HandleFunc("/posts/", postHandler.List).Methods("GET")
	apiRouter.HandleFunc("/posts", postHandler.Add).Methods("POST")
	apiRouter.HandleFunc("/post/{post_id}", postHandler.Get).Methods("GET")
	apiRouter.HandleFunc("/post/{post_id}", postHandler.Delete).Methods("DELETE")
	apiRouter.HandleFunc("/user/{username}/posts", postHandler.GetByUser).Methods("GET")

	// Likes
	apiRouter.HandleFunc("/post/{post_id}/like", postHandler.LikePost).Methods("POST")
	apiRouter.HandleFunc("/post/{post_id}/comments/{comment_id}/like", postHandler.LikeComment).Methods("POST")
	apiRouter.HandleFunc("/post/{post_id}/comments/{comment_id}/replies/{reply_id}/like", postHandler.LikeReply).Methods("POST")

	// Comments
	apiRouter.HandleFunc("/post/{post_id}/comments", postHandler.AddComment).Methods("POST")
	apiRouter.HandleFunc("/post/{post_id}/comments/{comment_id}/pin", postHandler.TogglePin).Methods("POST")

	// Moderation
	apiRouter.HandleFunc("/moderation/posts", postHandler.Pending).Methods("GET")
	apiRouter.HandleFunc("/moderation/post/{post_id}/approve", postHandler.Approve).Methods("POST")
	apiRouter.HandleFunc("/moderation/post/{post_id}/hide", postHandler.Hide).Methods("POST")

	// User
	apiRouter.HandleFunc("/register", userHandler.Register).Methods("POST")
	apiRouter.HandleFunc("/login", userHandler.LogIn).Methods("POST")

	// Attachments are served as-is from the uploads dir
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadsDir))))

	auth := middleware.NewAuthMiddleware(sessionManager, usersRepo)
	r.Use(auth.Middleware)

	logMiddleware := middleware.NewLoggingMiddleware(logger.Run(cfg["LOG_LEVEL"]))
	r.Use(logMiddleware.SetupTracing)
	r.Use(logMiddleware.SetupLogging)
	r.Use(logMiddleware.AccessLog)

	// Template path is relative to the project root for running with Makefile
	spa := spaHandler{staticPath: "template", indexPath: "index.html"}
	r.PathPrefix("/").Handler(spa)

	addr := cfg["HTTP_ADDR"]
	if addr == "" {
		addr = ":8080"
	}
	log.Println("Serving at http://localhost" + addr + "/")
	log.Fatalln(http.ListenAndServe(addr, r))
}

func readDotenv() EnvConfig {
	env, err := godotenv.Read()
	if err != nil {
		log.Fatal("failed reading .env file:", err)
	}
	return env
}
